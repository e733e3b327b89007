package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/config"
	"github.com/YuweiUltra/Option-CFFEX/internal/market"
	"github.com/YuweiUltra/Option-CFFEX/internal/store"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return parsed
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Backtest: config.BacktestConfig{
			InitCash:           100000,
			ExchangeSymbol:     "ZJS",
			AssetKind:          "option",
			StartDate:          day(t, "2024-01-02"),
			EndDate:            day(t, "2024-01-04"),
			InstrumentPrefixes: []string{"MO"},
			OptionRight:        "P",
			Multiplier:         100,
			FillMode:           "close",
		},
		Strategy: config.StrategyConfig{
			RollThresholdDays: 5,
			LongRank:          1,
			LongCount:         1,
			ShortRank:         0,
			ShortCount:        2,
		},
	}
}

// newTestApp 以内存库搭一个可完整回放三个交易日的最小应用。
func newTestApp(t *testing.T) (*App, *store.Store) {
	t.Helper()
	s, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	var options []market.Row
	var futures []market.FutureRow
	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		for _, strike := range []float64{4800, 4900, 5100, 5200} {
			options = append(options, market.Row{
				UniID:        fmt.Sprintf("MO2401-P-%.0f", strike),
				Date:         day(t, d),
				Exchange:     "ZJS",
				Kind:         market.AssetOption,
				Open:         strike / 100,
				Close:        strike / 100,
				ListedDate:   day(t, "2023-12-01"),
				DeListedDate: day(t, "2024-01-19"),
				StrikePrice:  strike,
				OptionRight:  market.RightPut,
				UnderlyingID: "MO2401",
			})
		}
		futures = append(futures, market.FutureRow{
			UniID: "MO2401", Date: day(t, d), Close: 5000,
			MaturityDate: day(t, "2024-01-19"),
		})
	}
	if err := s.SaveOptionRows(ctx, options); err != nil {
		t.Fatalf("SaveOptionRows: %v", err)
	}
	if err := s.SaveFutureRows(ctx, futures); err != nil {
		t.Fatalf("SaveFutureRows: %v", err)
	}

	return New(testConfig(t), zap.NewNop(), s), s
}

func countResults(t *testing.T, s *store.Store) (rows, runs int) {
	t.Helper()
	err := s.DB().QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT run_id) FROM results`).Scan(&rows, &runs)
	if err != nil {
		t.Fatalf("count results: %v", err)
	}
	return rows, runs
}

func TestRunPersistsOneRowPerTradingDay(t *testing.T) {
	a, s := newTestApp(t)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, runs := countResults(t, s)
	if runs != 1 {
		t.Errorf("expected a single run, got %d", runs)
	}
	if rows != 3 {
		t.Errorf("expected 3 result rows, got %d", rows)
	}
}

func TestSweepRunsAllVariants(t *testing.T) {
	a, s := newTestApp(t)

	variants := []config.StrategyConfig{
		{RollThresholdDays: 5, LongRank: 0, LongCount: 1, ShortRank: 0, ShortCount: 2},
		{RollThresholdDays: 5, LongRank: 1, LongCount: 1, ShortRank: 0, ShortCount: 1},
	}
	if err := a.Sweep(context.Background(), variants); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	rows, runs := countResults(t, s)
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
	if rows != 6 {
		t.Errorf("expected 6 result rows, got %d", rows)
	}
}

func TestSweepRejectsEmptyVariants(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.Sweep(context.Background(), nil); err == nil {
		t.Fatalf("empty variant list must be rejected")
	}
}

func TestRunFailsWithoutMarketData(t *testing.T) {
	s, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitMarketSchema(context.Background()); err != nil {
		t.Fatalf("InitMarketSchema: %v", err)
	}

	a := New(testConfig(t), zap.NewNop(), s)
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("empty option_rows must fail the run")
	}
}
