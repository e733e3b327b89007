package exchange

import (
	"context"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// TableSource 以固定行情表实现 DataSource，便于测试与内存回放。
type TableSource struct {
	table market.Table
}

// NewTableSource 构建内存数据源。
func NewTableSource(table market.Table) *TableSource {
	return &TableSource{table: table}
}

// Load 实现 DataSource。
func (s *TableSource) Load(ctx context.Context) (market.Table, error) {
	return s.table, nil
}

// CalendarFromTable 从行情表提取交易日序列，用于构建日历。
func CalendarFromTable(table market.Table, start, end time.Time) *Calendar {
	days := make([]time.Time, 0, len(table.Rows))
	for _, row := range table.Rows {
		days = append(days, row.Date)
	}
	return NewCalendar(days, start, end)
}
