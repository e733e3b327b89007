package market

import (
	"fmt"
	"strings"
	"time"
)

// SchemaError 表示行情表缺少必需列，对该数据源是致命错误。
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("market: 行情表缺少必需列: %s", strings.Join(e.Missing, ", "))
}

// MismatchError 表示行情表中出现了与模拟器配置不符的交易所或资产类别。
type MismatchError struct {
	Time  time.Time
	UniID string
	Field string
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("market: %s 合约 %s 的 %s 与配置不符: 期望 %s 实际 %s",
		e.Time.Format("2006-01-02"), e.UniID, e.Field, e.Want, e.Got)
}

// DuplicateKeyError 表示过滤后的快照内出现重复合约键，视为数据损坏。
type DuplicateKeyError struct {
	Time  time.Time
	UniID string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("market: %s 快照内合约键 %s 重复", e.Time.Format("2006-01-02"), e.UniID)
}
