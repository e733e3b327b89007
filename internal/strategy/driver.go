package strategy

import (
	"context"

	"github.com/YuweiUltra/Option-CFFEX/internal/broker"
	"github.com/YuweiUltra/Option-CFFEX/internal/exchange"
)

// Driver 每个交易步骤做一次决策。实现只能通过账本的下单接口改变
// 状态，不得直接修改持仓或行情快照。
// 返回的 event 为策略级结构性动作的标记（如移仓），写入当日结果行。
type Driver interface {
	OnStep(ctx context.Context, step exchange.Step, ledger *broker.Ledger) (event string, err error)
}

// DriverFunc 允许使用函数作为策略驱动。
type DriverFunc func(ctx context.Context, step exchange.Step, ledger *broker.Ledger) (string, error)

// OnStep 实现 Driver。
func (f DriverFunc) OnStep(ctx context.Context, step exchange.Step, ledger *broker.Ledger) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, step, ledger)
}
