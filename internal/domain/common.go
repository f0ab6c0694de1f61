package domain

// Direction is the side of a leveraged position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// IsValid reports whether d is one of the known directions.
func (d Direction) IsValid() bool {
	return d == Long || d == Short
}

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was settled.
type CloseReason string

const (
	CloseReasonTakeProfit  CloseReason = "TP"
	CloseReasonStopLoss    CloseReason = "SL"
	CloseReasonLiquidation CloseReason = "Liquidation"
	CloseReasonManual      CloseReason = "Manual"
)
