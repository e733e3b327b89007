package backtest

import (
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
)

// ResultRow 为单个交易步骤的结果行，持仓与流水均为深拷贝。
type ResultRow struct {
	Date           time.Time
	PortfolioValue float64
	Cash           float64
	Positions      map[string]broker.Position
	Transactions   []broker.Transaction
	DailyReturn    float64
	Event          string
}

// ResultLog 为只追加的结果序列，顺序即交易日历顺序。
type ResultLog struct {
	rows []ResultRow
}

// Append 追加一行结果。
func (l *ResultLog) Append(row ResultRow) {
	l.rows = append(l.rows, row)
}

// Len 返回结果行数。
func (l *ResultLog) Len() int {
	return len(l.rows)
}

// Rows 返回全部结果行的副本切片。
func (l *ResultLog) Rows() []ResultRow {
	return append([]ResultRow(nil), l.rows...)
}

// DailyReturns 返回每日收益率序列。
func (l *ResultLog) DailyReturns() []float64 {
	out := make([]float64, len(l.rows))
	for i, row := range l.rows {
		out[i] = row.DailyReturn
	}
	return out
}

// CumulativeReturns 计算累计收益率序列：(1+r) 的累积乘积减一。
// 在整个回放结束后计算一次，不作为逐步状态维护。
func (l *ResultLog) CumulativeReturns() []float64 {
	out := make([]float64, len(l.rows))
	acc := 1.0
	for i, row := range l.rows {
		acc *= 1 + row.DailyReturn
		out[i] = acc - 1
	}
	return out
}
