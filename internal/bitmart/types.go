// Package bitmart hosts the futures venue REST connector consumed by the engine.
package bitmart

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side enumerates the venue's numeric order direction codes.
type Side int

const (
	SideOpenShort  Side = 1
	SideCloseLong  Side = 2
	SideCloseShort Side = 3
	SideOpenLong   Side = 4
)

// String renders the code for logs and metrics labels.
func (s Side) String() string {
	switch s {
	case SideOpenShort:
		return "open_short"
	case SideCloseLong:
		return "close_long"
	case SideCloseShort:
		return "close_short"
	case SideOpenLong:
		return "open_long"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

// CloseSide returns the market order code that flattens a position on the
// given side ("long" or "short").
func CloseSide(positionSide string) Side {
	if positionSide == "long" {
		return SideCloseLong
	}
	return SideCloseShort
}

// PlanKind selects which conditional leg a plan order protects.
type PlanKind string

const (
	PlanTakeProfit PlanKind = "take_profit"
	PlanStopLoss   PlanKind = "stop_loss"
)

// Kline is a single candle. Batches returned by the client are sorted
// ascending by OpenTime.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Position is a snapshot of the venue-owned open position for one symbol.
type Position struct {
	Symbol       string
	Side         string // "long" or "short"
	OpenAvgPrice decimal.Decimal
	Size         int
}

// PnLRecord is one realized-PnL settlement row from the venue's transaction
// history. Financial fields stay venue-formatted strings so they can be
// journaled verbatim.
type PnLRecord struct {
	Time          time.Time
	RealizedPnL   string
	Fee           string
	CloseAvgPrice string
}

// OrderRequest describes a market order placement.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Size       int
	MarginMode int    // 1 isolated, 2 cross; 0 omits the field
	OpenType   string // "isolated" or "cross"; empty omits the field
}

// VenueError reports a response the venue answered but refused, carrying the
// embedded status code. A 200-level transport response with a non-success
// code still fails the call.
type VenueError struct {
	Op      string
	Code    int
	Message string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s: venue code %d: %s", e.Op, e.Code, e.Message)
}
