package backtest

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// 日频换算年化的系数。
const annualFactor = 252

// Metrics 记录回放结束后的绩效指标。
type Metrics struct {
	TotalReturn      float64
	CumulativeReturn float64
	MaxDrawdown      float64
	SharpeRatio      float64
	AnnualVolatility float64
	Trades           int
}

// Calculate 在完整结果序列上计算绩效指标。
func Calculate(log *ResultLog) Metrics {
	rows := log.Rows()
	if len(rows) == 0 {
		return Metrics{}
	}

	values := make([]float64, len(rows))
	trades := 0
	for i, row := range rows {
		values[i] = row.PortfolioValue
		trades += len(row.Transactions)
	}

	totalReturn := 0.0
	if initial := values[0]; initial != 0 {
		totalReturn = values[len(values)-1]/initial - 1
	}

	cumulative := log.CumulativeReturns()

	metrics := Metrics{
		TotalReturn:      totalReturn,
		CumulativeReturn: cumulative[len(cumulative)-1],
		MaxDrawdown:      computeDrawdown(values),
		Trades:           trades,
	}

	returns := log.DailyReturns()
	if len(returns) >= 2 {
		mean := last(talib.Sma(returns, len(returns)))
		std := last(talib.StdDev(returns, len(returns), 1))
		if std > 0 {
			metrics.SharpeRatio = mean / std * math.Sqrt(annualFactor)
		}
		metrics.AnnualVolatility = std * math.Sqrt(annualFactor)
	}

	return metrics
}

// UnderlyingCumulative 计算标的收盘价序列的累计收益，
// 作为策略收益的对照基准。
func UnderlyingCumulative(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	roc := talib.Roc(closes, 1)
	out := make([]float64, len(roc))
	acc := 1.0
	for i, r := range roc {
		acc *= 1 + r/100
		out[i] = acc - 1
	}
	return out
}

func computeDrawdown(values []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
