package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// State 为模拟器状态机的状态。
type State int

const (
	// StateIdle 尚未推进到任何交易日。
	StateIdle State = iota
	// StateIngested 当前交易日的快照已发布。
	StateIngested
	// StateExhausted 日历已耗尽，模拟器进入终态。
	StateExhausted
)

// DataSource 提供原始行情表，由外部数据协作方实现。
// 模拟器只在第一次推进时调用 Load，之后按日过滤缓存结果。
type DataSource interface {
	Load(ctx context.Context) (market.Table, error)
}

// Step 为一次推进的产出。Snapshot 为 nil 表示当日无可交易合约，
// 此时日历照常前进。
type Step struct {
	Time       time.Time
	Snapshot   *market.Snapshot
	Candidates *Candidates
}

// Simulator 按交易日历回放行情，仅暴露当前模拟时刻可见的数据。
type Simulator struct {
	symbol   string
	kind     market.AssetKind
	calendar *Calendar
	source   DataSource
	enricher Enricher
	logger   *zap.Logger

	state    State
	now      time.Time
	cache    *market.Table
	current  *market.Snapshot
	previous *market.Snapshot
}

// Option 配置模拟器的可选项。
type Option func(*Simulator)

// WithEnricher 注入策略相关的快照加工钩子。
func WithEnricher(e Enricher) Option {
	return func(s *Simulator) { s.enricher = e }
}

// WithLogger 注入日志实例。
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// NewSimulator 构建交易所模拟器。
func NewSimulator(symbol string, kind market.AssetKind, calendar *Calendar, source DataSource, opts ...Option) (*Simulator, error) {
	if symbol == "" {
		return nil, fmt.Errorf("exchange: 交易所代码不能为空")
	}
	if calendar == nil {
		return nil, fmt.Errorf("exchange: 交易日历不能为空")
	}
	if source == nil {
		return nil, fmt.Errorf("exchange: 数据源不能为空")
	}
	s := &Simulator{
		symbol:   symbol,
		kind:     kind,
		calendar: calendar,
		source:   source,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// State 返回当前状态。
func (s *Simulator) State() State { return s.state }

// Now 返回当前模拟时刻。
func (s *Simulator) Now() time.Time { return s.now }

// Current 返回当前交易日的快照，当日无可交易合约时为 nil。
func (s *Simulator) Current() *market.Snapshot { return s.current }

// Previous 返回上一个已发布的快照，用于回退定价。
func (s *Simulator) Previous() *market.Snapshot { return s.previous }

// Calendar 返回底层交易日历。
func (s *Simulator) Calendar() *Calendar { return s.calendar }

// Advance 推进到下一个交易日，发布过滤后的快照。
// 日历耗尽时返回 false 并进入终态。
func (s *Simulator) Advance(ctx context.Context) (Step, bool, error) {
	day, ok := s.calendar.Next()
	if !ok {
		s.state = StateExhausted
		return Step{}, false, nil
	}
	s.now = day

	if s.cache == nil {
		table, err := s.source.Load(ctx)
		if err != nil {
			return Step{}, false, fmt.Errorf("exchange: 加载行情数据失败: %w", err)
		}
		s.cache = &table
	}

	snap, err := s.ingest(*s.cache)
	if err != nil {
		return Step{}, false, err
	}

	// 仅在发布过新快照时轮换回退缓存：连续空交易日期间
	// previous 始终指向最后一份已发布的行情。
	if s.current != nil {
		s.previous = s.current
	}
	s.current = nil

	if snap == nil {
		s.logger.Debug("当日无可交易合约", zap.Time("date", day))
		return Step{Time: day}, true, nil
	}

	var candidates *Candidates
	if s.enricher != nil {
		enriched, cands, err := s.enricher.Enrich(day, snap)
		if err != nil {
			return Step{}, false, fmt.Errorf("exchange: 快照加工失败: %w", err)
		}
		snap, candidates = enriched, cands
	}

	s.current = snap
	s.state = StateIngested
	s.logger.Debug("快照已发布",
		zap.Time("date", day),
		zap.Int("instruments", snap.Len()))
	return Step{Time: day, Snapshot: snap, Candidates: candidates}, true, nil
}

// ingest 校验原始行情表并过滤出当前时刻在市的合约。
// 过滤后为空时返回 (nil, nil)。
func (s *Simulator) ingest(table market.Table) (*market.Snapshot, error) {
	var missing []string
	for _, col := range market.RequiredColumns {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &market.SchemaError{Missing: missing}
	}

	infos := make(map[string]market.Info)
	quotes := make(map[string]market.Quote)
	kept := make(map[string]market.Row)

	for _, row := range table.Rows {
		if row.Kind != s.kind {
			return nil, &market.MismatchError{
				Time: s.now, UniID: row.UniID, Field: "type",
				Want: s.kind.String(), Got: row.Kind.String(),
			}
		}
		if row.Exchange != s.symbol {
			return nil, &market.MismatchError{
				Time: s.now, UniID: row.UniID, Field: "exchange",
				Want: s.symbol, Got: row.Exchange,
			}
		}

		date := DateOnly(row.Date)
		listed := DateOnly(row.ListedDate)
		deListed := DateOnly(row.DeListedDate)
		if !date.Equal(s.now) {
			continue
		}
		if listed.After(s.now) || !deListed.After(s.now) {
			continue
		}

		if prev, ok := kept[row.UniID]; ok {
			if prev == row {
				// 完全重复的行直接丢弃。
				continue
			}
			return nil, &market.DuplicateKeyError{Time: s.now, UniID: row.UniID}
		}
		kept[row.UniID] = row

		infos[row.UniID] = market.Info{
			UniID:        row.UniID,
			Exchange:     row.Exchange,
			Kind:         row.Kind,
			ListedDate:   listed,
			DeListedDate: deListed,
		}
		quotes[row.UniID] = market.Quote{
			UniID:        row.UniID,
			Open:         row.Open,
			Close:        row.Close,
			CloseAdj:     row.CloseAdj,
			Volume:       row.Volume,
			StrikePrice:  row.StrikePrice,
			OptionRight:  row.OptionRight,
			UnderlyingID: row.UnderlyingID,
			DeListedDate: deListed,
		}
	}

	if len(quotes) == 0 {
		return nil, nil
	}
	return market.NewSnapshot(s.now, infos, quotes), nil
}
