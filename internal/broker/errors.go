package broker

import (
	"fmt"
	"strings"
	"time"
)

// OverCoverError 表示买入平空的数量超过了现有空头规模，订单被拒绝。
type OverCoverError struct {
	Time      time.Time
	UniID     string
	Short     int64
	Requested int64
}

func (e *OverCoverError) Error() string {
	return fmt.Sprintf("broker: %s 合约 %s 买入 %d 超过空头持仓 %d",
		e.Time.Format("2006-01-02"), e.UniID, e.Requested, e.Short)
}

// OverSellError 表示卖出数量超过了现有多头规模，订单被拒绝。
type OverSellError struct {
	Time      time.Time
	UniID     string
	Long      int64
	Requested int64
}

func (e *OverSellError) Error() string {
	return fmt.Sprintf("broker: %s 合约 %s 卖出 %d 超过多头持仓 %d",
		e.Time.Format("2006-01-02"), e.UniID, e.Requested, e.Long)
}

// PriceResolutionError 表示价格回退链全部落空，对本次回放是致命错误。
// 静默回退会掩盖脏数据，这里显式上抛。
type PriceResolutionError struct {
	Time    time.Time
	UniID   string
	Sources []string
}

func (e *PriceResolutionError) Error() string {
	return fmt.Sprintf("broker: %s 合约 %s 无法定价, 已尝试价格源: %s",
		e.Time.Format("2006-01-02"), e.UniID, strings.Join(e.Sources, " -> "))
}
