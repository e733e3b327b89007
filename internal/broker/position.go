package broker

import (
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// Position 为单个合约的持仓记录，由账本独占持有。
// Shares 正为多头、负为空头；份额归零或到期结算时整条记录删除。
type Position struct {
	UniID        string
	Shares       int64
	AvgPrice     float64
	Multiplier   float64
	Kind         market.AssetKind
	MarginRatio  float64
	StrikePrice  float64
	Right        market.OptionRight
	UnderlyingID string
	DeListedDate time.Time

	// 开仓时的标的收盘价，标的行情缺失时作为最后参考。
	EntryUnderlying float64

	// 逐日盯市的最新值，由 Revalue 维护。
	LastPrice      float64
	LastUnderlying float64
	MarketValue    float64
	NominalValue   float64
}

// expiresOn 判断持仓是否在给定交易日到期。
func (p *Position) expiresOn(day time.Time) bool {
	if p.DeListedDate.IsZero() {
		return false
	}
	return p.DeListedDate.Equal(day)
}

// intrinsicValue 计算期权的到期实值。
func (p *Position) intrinsicValue(underlyingClose float64) float64 {
	switch p.Right {
	case market.RightCall:
		if underlyingClose > p.StrikePrice {
			return underlyingClose - p.StrikePrice
		}
	case market.RightPut:
		if p.StrikePrice > underlyingClose {
			return p.StrikePrice - underlyingClose
		}
	}
	return 0
}

// futureValue 计算期货持仓的盯市价值：浮动盈亏加上占用的保证金。
// 保证金按份额绝对值计，空头同样占用保证金。
func (p *Position) futureValue(price float64) float64 {
	pnl := float64(p.Shares) * (price - p.AvgPrice) * p.Multiplier
	shares := p.Shares
	if shares < 0 {
		shares = -shares
	}
	margin := float64(shares) * p.AvgPrice * p.Multiplier * p.MarginRatio
	return pnl + margin
}
