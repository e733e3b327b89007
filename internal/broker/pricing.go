package broker

import (
	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// FillMode 控制成交价的取法。
type FillMode string

const (
	// FillClose 以收盘价成交，买卖主路径的默认取法。
	FillClose FillMode = "close"
	// FillMid 以开收盘中间价成交。
	FillMid FillMode = "mid"
)

// priceSource 为价格回退链中的一个命名价格源。
// 按顺序尝试，命中即停；全部落空以 PriceResolutionError 上抛，
// 绝不静默退到脏数据。
type priceSource struct {
	name   string
	lookup func(uniID string, kind market.AssetKind) (market.Quote, bool)
}

func (l *Ledger) priceSources() []priceSource {
	return []priceSource{
		{name: "snapshot", lookup: func(id string, kind market.AssetKind) (market.Quote, bool) {
			return snapshotQuote(l.current, id, kind)
		}},
		{name: "previous", lookup: func(id string, kind market.AssetKind) (market.Quote, bool) {
			return snapshotQuote(l.previous, id, kind)
		}},
		{name: "position", lookup: l.positionQuote},
	}
}

// resolveQuote 沿回退链解析合约行情，返回命中的价格源名称。
func (l *Ledger) resolveQuote(uniID string, kind market.AssetKind) (market.Quote, string, error) {
	sources := l.priceSources()
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, src.name)
		if q, ok := src.lookup(uniID, kind); ok {
			return q, src.name, nil
		}
	}
	return market.Quote{}, "", &PriceResolutionError{Time: l.now, UniID: uniID, Sources: names}
}

// snapshotQuote 从快照取行情；期货合约本身不在期权快照内，
// 退而扫描以其为标的的合约所携带的标的收盘价。
func snapshotQuote(s *market.Snapshot, uniID string, kind market.AssetKind) (market.Quote, bool) {
	if s == nil {
		return market.Quote{}, false
	}
	if q, ok := s.Quote(uniID); ok {
		return q, true
	}
	if kind == market.AssetFuture {
		if close, ok := s.UnderlyingClose(uniID); ok {
			return market.Quote{UniID: uniID, Close: close, UnderlyingClose: close}, true
		}
	}
	return market.Quote{}, false
}

// positionQuote 以持仓均价合成行情，作为被迫平仓时的最后手段。
func (l *Ledger) positionQuote(uniID string, _ market.AssetKind) (market.Quote, bool) {
	pos, ok := l.positions[uniID]
	if !ok {
		return market.Quote{}, false
	}
	return market.Quote{
		UniID:           uniID,
		Open:            pos.AvgPrice,
		Close:           pos.AvgPrice,
		StrikePrice:     pos.StrikePrice,
		OptionRight:     pos.Right,
		UnderlyingID:    pos.UnderlyingID,
		UnderlyingClose: pos.LastUnderlying,
		DeListedDate:    pos.DeListedDate,
	}, true
}

// fillPrice 按成交模式从行情中取成交价。
// 期货以标的收盘价成交。
func (l *Ledger) fillPrice(q market.Quote, kind market.AssetKind) float64 {
	if kind == market.AssetFuture && q.UnderlyingClose > 0 {
		return q.UnderlyingClose
	}
	if l.fillMode == FillMid && q.Open > 0 {
		return (q.Open + q.Close) / 2
	}
	return q.Close
}
