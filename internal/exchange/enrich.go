package exchange

import (
	"sort"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// Enricher 在基础快照之上做策略相关的加工，返回派生快照与候选腿。
// 基础快照保持不变。
type Enricher interface {
	Enrich(now time.Time, snap *market.Snapshot) (*market.Snapshot, *Candidates, error)
}

// Candidates 为按行权价与标的收盘距离排好序的候选腿。
// Sell 腿行权价高于标的收盘，按 (标的, 行权价) 升序；
// Buy 腿行权价低于标的收盘，按标的升序、行权价降序。
type Candidates struct {
	Sell []market.Quote
	Buy  []market.Quote
}

// Empty 判断两侧候选是否任一为空。
func (c *Candidates) Empty() bool {
	return c == nil || len(c.Sell) == 0 || len(c.Buy) == 0
}

// Underlyings 返回 Sell 侧出现过的标的合约，去重升序。
func (c *Candidates) Underlyings() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, q := range c.Sell {
		if _, ok := seen[q.UnderlyingID]; ok {
			continue
		}
		seen[q.UnderlyingID] = struct{}{}
		out = append(out, q.UnderlyingID)
	}
	sort.Strings(out)
	return out
}

// ForUnderlying 过滤出指定标的的候选腿，保持原有排序。
func (c *Candidates) ForUnderlying(id string) Candidates {
	var out Candidates
	if c == nil {
		return out
	}
	for _, q := range c.Sell {
		if q.UnderlyingID == id {
			out.Sell = append(out.Sell, q)
		}
	}
	for _, q := range c.Buy {
		if q.UnderlyingID == id {
			out.Buy = append(out.Buy, q)
		}
	}
	return out
}

// OptionEnricher 把期权行情与当月/次月/隔月的标的期货收盘价做联结，
// 过滤指定期权方向，并产出候选腿分组。
type OptionEnricher struct {
	futures  map[time.Time]map[string]float64
	prefixes []string
	right    market.OptionRight
}

// NewOptionEnricher 从标的期货行情构建加工器。
// prefixes 为回测合约前缀（如 IO、MO），月份后缀按当前交易日推算。
func NewOptionEnricher(futures []market.FutureRow, prefixes []string, right market.OptionRight) *OptionEnricher {
	idx := make(map[time.Time]map[string]float64)
	for _, row := range futures {
		day := DateOnly(row.Date)
		byID, ok := idx[day]
		if !ok {
			byID = make(map[string]float64)
			idx[day] = byID
		}
		byID[row.UniID] = row.Close
	}
	return &OptionEnricher{futures: idx, prefixes: prefixes, right: right}
}

// Enrich 实现 Enricher。
func (e *OptionEnricher) Enrich(now time.Time, snap *market.Snapshot) (*market.Snapshot, *Candidates, error) {
	months := []string{
		now.Format("0601"),
		now.AddDate(0, 1, 0).Format("0601"),
		now.AddDate(0, 2, 0).Format("0601"),
	}
	wanted := make(map[string]struct{}, len(e.prefixes)*len(months))
	for _, prefix := range e.prefixes {
		for _, m := range months {
			wanted[prefix+m] = struct{}{}
		}
	}

	closes := make(map[string]float64)
	for id, close := range e.futures[DateOnly(now)] {
		if _, ok := wanted[id]; ok {
			closes[id] = close
		}
	}

	joined := make(map[string]market.Quote)
	for _, q := range snap.Quotes() {
		underlyingClose, ok := closes[q.UnderlyingID]
		if !ok {
			continue
		}
		if q.OptionRight != e.right {
			continue
		}
		q.UnderlyingClose = underlyingClose
		joined[q.UniID] = q
	}

	cands := &Candidates{}
	for _, q := range joined {
		switch {
		case q.StrikePrice > q.UnderlyingClose:
			cands.Sell = append(cands.Sell, q)
		case q.StrikePrice < q.UnderlyingClose:
			cands.Buy = append(cands.Buy, q)
		}
	}
	sort.Slice(cands.Sell, func(i, j int) bool {
		a, b := cands.Sell[i], cands.Sell[j]
		if a.UnderlyingID != b.UnderlyingID {
			return a.UnderlyingID < b.UnderlyingID
		}
		return a.StrikePrice < b.StrikePrice
	})
	sort.Slice(cands.Buy, func(i, j int) bool {
		a, b := cands.Buy[i], cands.Buy[j]
		if a.UnderlyingID != b.UnderlyingID {
			return a.UnderlyingID < b.UnderlyingID
		}
		return a.StrikePrice > b.StrikePrice
	})

	return snap.WithQuotes(joined), cands, nil
}
