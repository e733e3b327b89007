package broker

import (
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// Side 为订单方向。
type Side string

const (
	SideBuy    Side = "buy"
	SideSell   Side = "sell"
	SideSettle Side = "settle"
)

// OrderStatus 为订单的最终状态。
type OrderStatus int

const (
	StatusOpen OrderStatus = iota
	StatusFilled
	StatusPartiallyFilled
	StatusCancelled
)

// String 返回状态的可读名称。
func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OrderRequest 为策略提交的下单请求。
type OrderRequest struct {
	UniID       string
	Side        Side
	Quantity    int64
	Kind        market.AssetKind
	Multiplier  float64
	MarginRatio float64
}

// Order 为账本追加的订单记录，成交后不再修改。
type Order struct {
	ID        int64
	Time      time.Time
	UniID     string
	Side      Side
	Kind      market.AssetKind
	Requested int64
	Filled    int64
	Price     float64
	Status    OrderStatus
}

// Transaction 为一笔实际成交的流水记录。
type Transaction struct {
	Time     time.Time
	UniID    string
	Side     Side
	Quantity int64
	Price    float64
}
