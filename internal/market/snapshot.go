package market

import (
	"sort"
	"time"
)

// Info 为合约上市信息视图中的一行。
type Info struct {
	UniID        string
	Exchange     string
	Kind         AssetKind
	ListedDate   time.Time
	DeListedDate time.Time
}

// Quote 为合约行情视图中的一行，只保留可交易字段。
// UnderlyingClose 在加工阶段由标的期货收盘价回填，基础快照中为 0。
type Quote struct {
	UniID           string
	Open            float64
	Close           float64
	CloseAdj        float64
	Volume          float64
	StrikePrice     float64
	OptionRight     OptionRight
	UnderlyingID    string
	UnderlyingClose float64
	DeListedDate    time.Time
}

// Snapshot 为某一交易时刻全部可交易合约的切片，发布后不再修改。
type Snapshot struct {
	Time   time.Time
	infos  map[string]Info
	quotes map[string]Quote
}

// NewSnapshot 从校验后的视图构建快照。
func NewSnapshot(t time.Time, infos map[string]Info, quotes map[string]Quote) *Snapshot {
	return &Snapshot{Time: t, infos: infos, quotes: quotes}
}

// Len 返回快照内合约数。
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.quotes)
}

// Quote 按合约键查询行情。
func (s *Snapshot) Quote(uniID string) (Quote, bool) {
	if s == nil {
		return Quote{}, false
	}
	q, ok := s.quotes[uniID]
	return q, ok
}

// Info 按合约键查询上市信息。
func (s *Snapshot) Info(uniID string) (Info, bool) {
	if s == nil {
		return Info{}, false
	}
	info, ok := s.infos[uniID]
	return info, ok
}

// UnderlyingClose 查询以 uniID 为标的的任一合约所携带的标的收盘价。
// 用于对标的期货本身下单时的定价。
func (s *Snapshot) UnderlyingClose(uniID string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	for _, q := range s.quotes {
		if q.UnderlyingID == uniID && q.UnderlyingClose > 0 {
			return q.UnderlyingClose, true
		}
	}
	return 0, false
}

// Quotes 返回按合约键排序的行情副本，避免调用方持有内部表。
func (s *Snapshot) Quotes() []Quote {
	if s == nil {
		return nil
	}
	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniID < out[j].UniID })
	return out
}

// WithQuotes 基于当前快照派生一个替换了行情视图的新快照，
// 供加工钩子使用，原快照保持不变。
func (s *Snapshot) WithQuotes(quotes map[string]Quote) *Snapshot {
	infos := make(map[string]Info, len(quotes))
	for id := range quotes {
		if info, ok := s.infos[id]; ok {
			infos[id] = info
		}
	}
	return &Snapshot{Time: s.Time, infos: infos, quotes: quotes}
}
