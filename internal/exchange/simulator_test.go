package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

var allColumns = []string{
	"uni_id", "date", "exchange", "type",
	"open", "high", "low", "close", "close_adj", "volume",
	"listed_date", "de_listed_date",
	"strike_price", "option_type", "underlying_id",
}

func putRow(t *testing.T, id, date, listed, deListed string, close, strike float64, underlying string) market.Row {
	t.Helper()
	return market.Row{
		UniID:        id,
		Date:         day(t, date),
		Exchange:     "ZJS",
		Kind:         market.AssetOption,
		Open:         close,
		Close:        close,
		ListedDate:   day(t, listed),
		DeListedDate: day(t, deListed),
		StrikePrice:  strike,
		OptionRight:  market.RightPut,
		UnderlyingID: underlying,
	}
}

type countingSource struct {
	table market.Table
	loads int
}

func (s *countingSource) Load(ctx context.Context) (market.Table, error) {
	s.loads++
	return s.table, nil
}

func newSim(t *testing.T, table market.Table, days ...string) *Simulator {
	t.Helper()
	timestamps := make([]time.Time, 0, len(days))
	for _, d := range days {
		timestamps = append(timestamps, day(t, d))
	}
	cal := NewCalendar(timestamps, time.Time{}, time.Time{})
	sim, err := NewSimulator("ZJS", market.AssetOption, cal, NewTableSource(table))
	if err != nil {
		t.Fatalf("NewSimulator returned error: %v", err)
	}
	return sim
}

func TestSimulatorFiltersListingWindow(t *testing.T) {
	table := market.Table{
		Columns: allColumns,
		Rows: []market.Row{
			putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401"),
			// 当日除牌，不再可交易。
			putRow(t, "MO2312-P-5000", "2024-01-02", "2023-11-01", "2024-01-02", 40, 5000, "MO2312"),
			// 尚未上市。
			putRow(t, "MO2402-P-5000", "2024-01-02", "2024-01-05", "2024-02-16", 30, 5000, "MO2402"),
			// 其他交易日的行。
			putRow(t, "MO2401-P-5100", "2024-01-03", "2023-12-01", "2024-01-19", 60, 5100, "MO2401"),
		},
	}
	sim := newSim(t, table, "2024-01-02")

	step, ok, err := sim.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a step")
	}
	if step.Snapshot.Len() != 1 {
		t.Fatalf("expected 1 tradable instrument, got %d", step.Snapshot.Len())
	}
	if _, found := step.Snapshot.Quote("MO2401-P-5000"); !found {
		t.Errorf("expected MO2401-P-5000 in snapshot")
	}
	if sim.State() != StateIngested {
		t.Errorf("expected StateIngested, got %v", sim.State())
	}
}

func TestSimulatorSchemaError(t *testing.T) {
	table := market.Table{
		Columns: []string{"uni_id", "date", "exchange", "type"},
		Rows:    []market.Row{putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")},
	}
	sim := newSim(t, table, "2024-01-02")

	_, _, err := sim.Advance(context.Background())
	var schemaErr *market.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 2 {
		t.Errorf("expected 2 missing columns, got %v", schemaErr.Missing)
	}
}

func TestSimulatorMismatchError(t *testing.T) {
	row := putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")
	row.Exchange = "SSE"
	table := market.Table{Columns: allColumns, Rows: []market.Row{row}}
	sim := newSim(t, table, "2024-01-02")

	_, _, err := sim.Advance(context.Background())
	var mismatchErr *market.MismatchError
	if !errors.As(err, &mismatchErr) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if mismatchErr.Field != "exchange" || mismatchErr.Got != "SSE" {
		t.Errorf("unexpected mismatch detail: %+v", mismatchErr)
	}
}

func TestSimulatorDuplicateKeyError(t *testing.T) {
	first := putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")
	conflicting := first
	conflicting.Close = 55
	table := market.Table{Columns: allColumns, Rows: []market.Row{first, conflicting}}
	sim := newSim(t, table, "2024-01-02")

	_, _, err := sim.Advance(context.Background())
	var dupErr *market.DuplicateKeyError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dupErr.UniID != "MO2401-P-5000" {
		t.Errorf("unexpected duplicate key %q", dupErr.UniID)
	}
}

func TestSimulatorDropsIdenticalDuplicates(t *testing.T) {
	row := putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")
	table := market.Table{Columns: allColumns, Rows: []market.Row{row, row}}
	sim := newSim(t, table, "2024-01-02")

	step, ok, err := sim.Advance(context.Background())
	if err != nil || !ok {
		t.Fatalf("Advance failed: ok=%v err=%v", ok, err)
	}
	if step.Snapshot.Len() != 1 {
		t.Errorf("identical rows should collapse, got %d instruments", step.Snapshot.Len())
	}
}

func TestSimulatorEmptyDayStillAdvances(t *testing.T) {
	table := market.Table{
		Columns: allColumns,
		Rows:    []market.Row{putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")},
	}
	sim := newSim(t, table, "2024-01-02", "2024-01-03", "2024-01-04")

	if _, ok, err := sim.Advance(context.Background()); !ok || err != nil {
		t.Fatalf("day 1 failed: ok=%v err=%v", ok, err)
	}

	// 第二天没有任何行，游标仍然前进且不发布快照。
	step, ok, err := sim.Advance(context.Background())
	if err != nil {
		t.Fatalf("empty day returned error: %v", err)
	}
	if !ok {
		t.Fatalf("cursor must advance through an empty day")
	}
	if step.Snapshot != nil {
		t.Errorf("expected no snapshot on empty day")
	}
	if !step.Time.Equal(day(t, "2024-01-03")) {
		t.Errorf("unexpected step time %s", step.Time)
	}

	// 上一份已发布快照保留，作为回退定价的第二价格源。
	if sim.Previous() == nil {
		t.Fatalf("previous snapshot must survive an empty day")
	}
	if _, found := sim.Previous().Quote("MO2401-P-5000"); !found {
		t.Errorf("previous snapshot lost its quotes")
	}
}

func TestSimulatorKeepsFallbackAcrossConsecutiveEmptyDays(t *testing.T) {
	table := market.Table{
		Columns: allColumns,
		Rows:    []market.Row{putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")},
	}
	sim := newSim(t, table, "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")

	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		step, ok, err := sim.Advance(context.Background())
		if err != nil || !ok {
			t.Fatalf("advance to %s failed: ok=%v err=%v", d, ok, err)
		}
		if !step.Time.Equal(day(t, d)) {
			t.Fatalf("unexpected step time %s, want %s", step.Time, d)
		}
	}

	// 连续两个空交易日后，回退缓存仍是最后一份已发布快照。
	if sim.Previous() == nil {
		t.Fatalf("previous snapshot lost across consecutive empty days")
	}
	if !sim.Previous().Time.Equal(day(t, "2024-01-02")) {
		t.Errorf("previous snapshot time %s, want 2024-01-02", sim.Previous().Time)
	}
	if _, found := sim.Previous().Quote("MO2401-P-5000"); !found {
		t.Errorf("previous snapshot lost its quotes")
	}

	// 再推进一个空交易日，缓存依旧保留。
	if _, ok, err := sim.Advance(context.Background()); !ok || err != nil {
		t.Fatalf("day 4 failed: ok=%v err=%v", ok, err)
	}
	if sim.Previous() == nil || !sim.Previous().Time.Equal(day(t, "2024-01-02")) {
		t.Errorf("fallback cache must survive every empty day")
	}
}

func TestSimulatorLoadsSourceOnce(t *testing.T) {
	src := &countingSource{table: market.Table{
		Columns: allColumns,
		Rows:    []market.Row{putRow(t, "MO2401-P-5000", "2024-01-02", "2023-12-01", "2024-01-19", 50, 5000, "MO2401")},
	}}
	cal := NewCalendar([]time.Time{day(t, "2024-01-02"), day(t, "2024-01-03")}, time.Time{}, time.Time{})
	sim, err := NewSimulator("ZJS", market.AssetOption, cal, src)
	if err != nil {
		t.Fatalf("NewSimulator returned error: %v", err)
	}

	for {
		_, ok, err := sim.Advance(context.Background())
		if err != nil {
			t.Fatalf("Advance returned error: %v", err)
		}
		if !ok {
			break
		}
	}

	if src.loads != 1 {
		t.Errorf("expected a single Load call, got %d", src.loads)
	}
	if sim.State() != StateExhausted {
		t.Errorf("expected StateExhausted, got %v", sim.State())
	}
}
