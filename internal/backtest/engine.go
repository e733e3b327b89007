package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
	"github.com/YuweiUltra/Option-CFFEX/internal/exchange"
	"github.com/YuweiUltra/Option-CFFEX/internal/strategy"
)

// Engine 串联交易所模拟器、账本与策略驱动，严格按
// 快照发布 -> 到期结算 -> 策略决策 -> 盯市重估 -> 记录结果
// 的顺序执行每个交易步骤。单次回放内没有并行。
type Engine struct {
	sim    *exchange.Simulator
	ledger *broker.Ledger
	driver strategy.Driver
	logger *zap.Logger

	lastPortfolio float64
}

// NewEngine 构建回测引擎。
func NewEngine(sim *exchange.Simulator, ledger *broker.Ledger, driver strategy.Driver, logger *zap.Logger) (*Engine, error) {
	if sim == nil {
		return nil, fmt.Errorf("backtest: 交易所模拟器不能为空")
	}
	if ledger == nil {
		return nil, fmt.Errorf("backtest: 账本不能为空")
	}
	if driver == nil {
		return nil, fmt.Errorf("backtest: 策略驱动不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sim:           sim,
		ledger:        ledger,
		driver:        driver,
		logger:        logger,
		lastPortfolio: ledger.PortfolioValue(),
	}, nil
}

// Run 执行完整回放，直至日历耗尽或发生致命错误。
// 空交易日照常推进并记录一行零成交的结果。
func (e *Engine) Run(ctx context.Context) (*ResultLog, error) {
	results := &ResultLog{}

	for {
		step, ok, err := e.sim.Advance(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		e.ledger.BeginStep(step.Time, step.Snapshot, e.sim.Previous())

		if err := e.ledger.SettleExpirations(); err != nil {
			return nil, err
		}

		var event string
		if step.Snapshot != nil {
			event, err = e.driver.OnStep(ctx, step, e.ledger)
			if err != nil {
				if isStructural(err) {
					return nil, err
				}
				// 业务性拒绝只影响当笔订单，回放继续。
				e.logger.Warn("策略订单被拒绝",
					zap.Time("date", step.Time),
					zap.Error(err))
			}
		}

		if err := e.ledger.Revalue(); err != nil {
			return nil, err
		}

		portfolioValue := e.ledger.PortfolioValue()
		results.Append(ResultRow{
			Date:           step.Time,
			PortfolioValue: portfolioValue,
			Cash:           e.ledger.Cash(),
			Positions:      e.ledger.Positions(),
			Transactions:   e.ledger.TransactionsAt(step.Time),
			DailyReturn:    dailyReturn(portfolioValue, e.lastPortfolio, e.ledger.NominalValue()),
			Event:          event,
		})
		e.lastPortfolio = portfolioValue

		e.logger.Debug("步骤完成",
			zap.Time("date", step.Time),
			zap.Float64("portfolio_value", portfolioValue),
			zap.Float64("cash", e.ledger.Cash()),
			zap.Int("remaining", e.sim.Calendar().Remaining()))
	}

	e.logger.Info("回放结束", zap.Int("steps", results.Len()))
	return results, nil
}

// dailyReturn 以名义敞口归一化当日损益，敞口为零或结果非有限数时记 0。
func dailyReturn(portfolioValue, lastPortfolio, nominalValue float64) float64 {
	if nominalValue == 0 {
		return 0
	}
	r := (portfolioValue - lastPortfolio) / nominalValue
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// isStructural 区分致命的结构性错误与业务性拒绝。
// 聚合错误中结构性成员优先：移仓平仓可能同时带回超卖拒绝与定价失败，
// 只要含有定价失败就必须中止回放。
func isStructural(err error) bool {
	var resolution *broker.PriceResolutionError
	if errors.As(err, &resolution) {
		return true
	}
	var overCover *broker.OverCoverError
	var overSell *broker.OverSellError
	if errors.As(err, &overCover) || errors.As(err, &overSell) {
		return false
	}
	return true
}
