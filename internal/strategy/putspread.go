package strategy

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
	"github.com/YuweiUltra/Option-CFFEX/internal/exchange"
	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// RollEvent 为移仓换月的结果行标记。
const RollEvent = "移仓换月"

// SpreadParams 定义认沽价差的腿位与移仓参数。
type SpreadParams struct {
	// LongRank/ShortRank 为在候选腿列表中的档位，0 为最接近标的收盘。
	LongRank   int
	LongCount  int64
	ShortRank  int
	ShortCount int64
	// RollThresholdDays 任一持仓距到期不足该天数时整体移仓。
	RollThresholdDays int
	Multiplier        float64
}

func (p SpreadParams) normalize() SpreadParams {
	if p.LongCount <= 0 {
		p.LongCount = 1
	}
	if p.ShortCount <= 0 {
		p.ShortCount = 2
	}
	if p.RollThresholdDays <= 0 {
		p.RollThresholdDays = 5
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 100
	}
	return p
}

// PutSpread 为默认参考策略：空仓时按档位开出一多腿加 N 空腿的
// 认沽价差，持仓临近到期时整体平仓并在后续月份合约上重建。
type PutSpread struct {
	params SpreadParams
	logger *zap.Logger
}

// NewPutSpread 构建认沽价差策略。
func NewPutSpread(params SpreadParams, logger *zap.Logger) *PutSpread {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PutSpread{params: params.normalize(), logger: logger}
}

// OnStep 实现 Driver。
func (s *PutSpread) OnStep(ctx context.Context, step exchange.Step, ledger *broker.Ledger) (string, error) {
	cands := step.Candidates
	positions := ledger.Positions()

	if len(positions) == 0 {
		if cands.Empty() {
			return "", nil
		}
		return "", s.openSpread(ledger, *cands)
	}

	if cands.Empty() {
		return "", nil
	}

	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pos := positions[id]
		if pos.DeListedDate.IsZero() {
			continue
		}
		daysToExpiry := int(pos.DeListedDate.Sub(step.Time).Hours() / 24)
		if daysToExpiry > s.params.RollThresholdDays {
			continue
		}

		s.logger.Info("持仓临近到期，移仓换月",
			zap.Time("date", step.Time),
			zap.String("uni_id", id),
			zap.Int("days_to_expiry", daysToExpiry))

		if err := ledger.CloseAll(); err != nil {
			return RollEvent, err
		}
		return RollEvent, s.openSpread(ledger, s.rollTarget(*cands))
	}

	return "", nil
}

// rollTarget 选择移仓目标合约月：优先次近月，档位不足时退回最近月。
func (s *PutSpread) rollTarget(cands exchange.Candidates) exchange.Candidates {
	underlyings := cands.Underlyings()
	if len(underlyings) == 0 {
		return exchange.Candidates{}
	}
	if len(underlyings) > 1 {
		next := cands.ForUnderlying(underlyings[1])
		if s.params.LongRank < len(next.Sell) && s.params.ShortRank < len(next.Buy) {
			return next
		}
	}
	return cands.ForUnderlying(underlyings[0])
}

// openSpread 按档位提交价差两腿。档位超出候选范围时跳过建仓。
func (s *PutSpread) openSpread(ledger *broker.Ledger, cands exchange.Candidates) error {
	if s.params.LongRank >= len(cands.Sell) || s.params.ShortRank >= len(cands.Buy) {
		s.logger.Warn("候选腿不足，跳过建仓",
			zap.Int("sell_candidates", len(cands.Sell)),
			zap.Int("buy_candidates", len(cands.Buy)))
		return nil
	}

	longLeg := cands.Sell[s.params.LongRank]
	if _, err := ledger.Submit(broker.OrderRequest{
		UniID:      longLeg.UniID,
		Side:       broker.SideBuy,
		Quantity:   s.params.LongCount,
		Kind:       market.AssetOption,
		Multiplier: s.params.Multiplier,
	}); err != nil {
		return err
	}

	shortLeg := cands.Buy[s.params.ShortRank]
	if _, err := ledger.Submit(broker.OrderRequest{
		UniID:      shortLeg.UniID,
		Side:       broker.SideSell,
		Quantity:   s.params.ShortCount,
		Kind:       market.AssetOption,
		Multiplier: s.params.Multiplier,
	}); err != nil {
		return err
	}

	s.logger.Debug("价差已建仓",
		zap.String("long", longLeg.UniID),
		zap.String("short", shortLeg.UniID))
	return nil
}
