package store

import (
	"context"
	"testing"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/backtest"
	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
	"github.com/YuweiUltra/Option-CFFEX/internal/config"
	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// newTestStore 构建内存库。:memory: 下多连接各自独立，必须限成单连接。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return parsed
}

func TestOptionRowsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []market.Row{{
		UniID:        "MO2401-P-5000",
		Date:         day(t, "2024-01-02"),
		Exchange:     "ZJS",
		Kind:         market.AssetOption,
		Open:         9.5,
		Close:        10,
		Volume:       120,
		ListedDate:   day(t, "2023-12-01"),
		DeListedDate: day(t, "2024-01-19"),
		StrikePrice:  5000,
		OptionRight:  market.RightPut,
		UnderlyingID: "MO2401",
	}}
	if err := s.SaveOptionRows(ctx, in); err != nil {
		t.Fatalf("SaveOptionRows: %v", err)
	}

	table, err := s.LoadOptionTable(ctx)
	if err != nil {
		t.Fatalf("LoadOptionTable: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	got := table.Rows[0]
	if got != in[0] {
		t.Errorf("row mismatch:\n got %+v\nwant %+v", got, in[0])
	}

	for _, col := range market.RequiredColumns {
		if !table.HasColumn(col) {
			t.Errorf("loaded table missing required column %q", col)
		}
	}
}

func TestSaveOptionRowsReplacesOnKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := market.Row{
		UniID: "MO2401-P-5000", Date: day(t, "2024-01-02"), Exchange: "ZJS",
		Kind: market.AssetOption, Close: 10,
		ListedDate: day(t, "2023-12-01"), DeListedDate: day(t, "2024-01-19"),
		OptionRight: market.RightPut, UnderlyingID: "MO2401",
	}
	if err := s.SaveOptionRows(ctx, []market.Row{row}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	row.Close = 12
	if err := s.SaveOptionRows(ctx, []market.Row{row}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	table, err := s.LoadOptionTable(ctx)
	if err != nil {
		t.Fatalf("LoadOptionTable: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0].Close != 12 {
		t.Errorf("expected single replaced row with close 12, got %+v", table.Rows)
	}
}

func TestFutureRowsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []market.FutureRow{{
		UniID:                 "MO2401",
		Date:                  day(t, "2024-01-02"),
		Close:                 5123,
		UnderlyingOrderBookID: "000852.XSHG",
		MaturityDate:          day(t, "2024-01-19"),
	}}
	if err := s.SaveFutureRows(ctx, in); err != nil {
		t.Fatalf("SaveFutureRows: %v", err)
	}

	out, err := s.LoadFutureRows(ctx)
	if err != nil {
		t.Fatalf("LoadFutureRows: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("row mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestRowSourceLoadsOptionTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := market.Row{
		UniID: "MO2401-P-5000", Date: day(t, "2024-01-02"), Exchange: "ZJS",
		Kind: market.AssetOption, Close: 10,
		ListedDate: day(t, "2023-12-01"), DeListedDate: day(t, "2024-01-19"),
		OptionRight: market.RightPut, UnderlyingID: "MO2401",
	}
	if err := s.SaveOptionRows(ctx, []market.Row{row}); err != nil {
		t.Fatalf("SaveOptionRows: %v", err)
	}

	table, err := NewRowSource(s).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Errorf("expected 1 row through the source, got %d", len(table.Rows))
	}
}

func TestSaveResultsAndDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	log := &backtest.ResultLog{}
	log.Append(backtest.ResultRow{
		Date:           day(t, "2024-01-02"),
		PortfolioValue: 100000,
		Cash:           99000,
		Positions: map[string]broker.Position{
			"MO2401-P-5000": {UniID: "MO2401-P-5000", Shares: 1, AvgPrice: 10},
		},
		Transactions: []broker.Transaction{{
			Time: day(t, "2024-01-02"), UniID: "MO2401-P-5000",
			Side: broker.SideBuy, Quantity: 1, Price: 10,
		}},
		DailyReturn: 0,
	})
	log.Append(backtest.ResultRow{
		Date:           day(t, "2024-01-03"),
		PortfolioValue: 100200,
		Cash:           99000,
		DailyReturn:    0.002,
		Event:          "移仓换月",
	})

	if err := s.SaveResults(ctx, "putspread-test", log); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	// 同一 run_id 重写应覆盖而非追加。
	if err := s.SaveResults(ctx, "putspread-test", log); err != nil {
		t.Fatalf("second SaveResults: %v", err)
	}

	dates, err := s.ResultDates(ctx, "putspread-test")
	if err != nil {
		t.Fatalf("ResultDates: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(dates))
	}
	if !dates[0].Equal(day(t, "2024-01-02")) || !dates[1].Equal(day(t, "2024-01-03")) {
		t.Errorf("dates out of order: %v", dates)
	}

	if dates, err := s.ResultDates(ctx, "unknown-run"); err != nil || len(dates) != 0 {
		t.Errorf("unknown run must yield empty dates, got %v err=%v", dates, err)
	}
}
