package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/backtest"
	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
	"github.com/YuweiUltra/Option-CFFEX/internal/config"
	"github.com/YuweiUltra/Option-CFFEX/internal/exchange"
	"github.com/YuweiUltra/Option-CFFEX/internal/market"
	"github.com/YuweiUltra/Option-CFFEX/internal/store"
	"github.com/YuweiUltra/Option-CFFEX/internal/strategy"
)

// App 聚合核心依赖并驱动一次完整回测：从存储加载行情契约表，
// 组装日历、模拟器、账本与策略，回放结束后落库结果。
// 每次 Run 构建全新的组件实例，运行之间不共享可变状态。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行默认参数的单次回测。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Backtest.ExchangeSymbol),
		zap.Strings("prefixes", a.cfg.Backtest.InstrumentPrefixes),
	)

	table, futures, err := a.loadMarketData(ctx)
	if err != nil {
		return err
	}

	runID := fmt.Sprintf("putspread-%s", time.Now().UTC().Format("20060102-150405"))
	results, err := a.runOne(ctx, table, futures, a.spreadParams(a.cfg.Strategy), runID)
	if err != nil {
		return err
	}

	if err := a.store.SaveResults(ctx, runID, results); err != nil {
		return err
	}
	a.logger.Info("回测结果已落库", zap.String("run_id", runID), zap.Int("rows", results.Len()))
	return nil
}

// runOne 以独立的模拟器/账本/策略实例回放一次。
func (a *App) runOne(ctx context.Context, table market.Table, futures []market.FutureRow, params strategy.SpreadParams, runID string) (*backtest.ResultLog, error) {
	bt := a.cfg.Backtest
	logger := a.logger.With(zap.String("run_id", runID))

	calendar := exchange.CalendarFromTable(table, bt.StartDate, bt.EndDate)
	if calendar.Len() == 0 {
		return nil, fmt.Errorf("app: 区间 [%s, %s] 内没有交易日",
			bt.StartDate.Format("2006-01-02"), bt.EndDate.Format("2006-01-02"))
	}

	enricher := exchange.NewOptionEnricher(futures, bt.InstrumentPrefixes, market.OptionRight(bt.OptionRight))
	sim, err := exchange.NewSimulator(bt.ExchangeSymbol, bt.Kind(), calendar, store.NewRowSource(a.store),
		exchange.WithEnricher(enricher),
		exchange.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	ledger := broker.NewLedger(broker.Config{
		InitCash:       bt.InitCash,
		CommissionRate: bt.CommissionRate,
		FillMode:       broker.FillMode(bt.FillMode),
	}, logger)

	driver := strategy.NewPutSpread(params, logger)

	engine, err := backtest.NewEngine(sim, ledger, driver, logger)
	if err != nil {
		return nil, err
	}

	results, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	metrics := backtest.Calculate(results)
	logger.Info("回测完成",
		zap.Int("steps", results.Len()),
		zap.Float64("final_value", ledger.PortfolioValue()),
		zap.Float64("cumulative_return", metrics.CumulativeReturn),
		zap.Float64("max_drawdown", metrics.MaxDrawdown),
		zap.Float64("sharpe", metrics.SharpeRatio),
		zap.Int("trades", metrics.Trades),
	)
	return results, nil
}

// loadMarketData 从存储读取行情契约表与标的期货行情。
// 契约表用于构建交易日历并校验数据非空；逐日回放经由
// RowSource 走同一张表，模拟器只在首次推进时加载。
func (a *App) loadMarketData(ctx context.Context) (market.Table, []market.FutureRow, error) {
	table, err := a.store.LoadOptionTable(ctx)
	if err != nil {
		return market.Table{}, nil, err
	}
	if len(table.Rows) == 0 {
		return market.Table{}, nil, fmt.Errorf("app: option_rows 表为空，请先导入清洗后的行情")
	}
	futures, err := a.store.LoadFutureRows(ctx)
	if err != nil {
		return market.Table{}, nil, err
	}
	return table, futures, nil
}

func (a *App) spreadParams(cfg config.StrategyConfig) strategy.SpreadParams {
	return strategy.SpreadParams{
		LongRank:          cfg.LongRank,
		LongCount:         cfg.LongCount,
		ShortRank:         cfg.ShortRank,
		ShortCount:        cfg.ShortCount,
		RollThresholdDays: cfg.RollThresholdDays,
		Multiplier:        a.cfg.Backtest.Multiplier,
	}
}
