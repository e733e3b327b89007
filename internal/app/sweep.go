package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YuweiUltra/Option-CFFEX/internal/backtest"
	"github.com/YuweiUltra/Option-CFFEX/internal/config"
)

// Sweep 对多组策略参数并行执行独立回测。
// 每组参数各自持有模拟器与账本实例，互不共享状态；
// 行情契约表只读，可在各组间安全复用。
func (a *App) Sweep(ctx context.Context, variants []config.StrategyConfig) error {
	if len(variants) == 0 {
		return fmt.Errorf("app: 参数扫描至少需要一组策略参数")
	}

	table, futures, err := a.loadMarketData(ctx)
	if err != nil {
		return err
	}

	batch := time.Now().UTC().Format("20060102-150405")
	results := make([]*backtest.ResultLog, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		runID := fmt.Sprintf("putspread-%s-%02d", batch, i)
		g.Go(func() error {
			log, err := a.runOne(gctx, table, futures, a.spreadParams(variant), runID)
			if err != nil {
				return fmt.Errorf("参数组 %s 回测失败: %w", runID, err)
			}
			results[i] = log
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// SQLite 写入串行化，落库放在并行回放之后。
	for i := range variants {
		runID := fmt.Sprintf("putspread-%s-%02d", batch, i)
		if err := a.store.SaveResults(ctx, runID, results[i]); err != nil {
			return err
		}
	}

	a.logger.Info("参数扫描完成", zap.Int("variants", len(variants)), zap.String("batch", batch))
	return nil
}
