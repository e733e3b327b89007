package broker

import (
	"math"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// Config 控制账本行为。
type Config struct {
	InitCash       float64
	CommissionRate float64
	FillMode       FillMode
}

// Ledger 为持仓账本，独占现金、持仓表与订单/成交流水。
// 每个交易步骤由引擎调用 BeginStep 对齐时钟与快照，随后依次执行
// 到期结算、下单与盯市重估。
type Ledger struct {
	initCash       float64
	cash           float64
	portfolioValue float64
	premiumValue   float64
	nominalValue   float64
	commissionRate float64
	fillMode       FillMode

	positions    map[string]*Position
	orders       []Order
	transactions []Transaction

	now      time.Time
	current  *market.Snapshot
	previous *market.Snapshot

	logger *zap.Logger
}

// NewLedger 构建账本。
func NewLedger(cfg Config, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FillMode == "" {
		cfg.FillMode = FillClose
	}
	return &Ledger{
		initCash:       cfg.InitCash,
		cash:           cfg.InitCash,
		portfolioValue: cfg.InitCash,
		commissionRate: cfg.CommissionRate,
		fillMode:       cfg.FillMode,
		positions:      make(map[string]*Position),
		logger:         logger,
	}
}

// BeginStep 对齐当前交易时刻与行情快照。previous 为上一交易日已发布
// 的快照，作为价格回退链的第二价格源。
func (l *Ledger) BeginStep(now time.Time, current, previous *market.Snapshot) {
	l.now = now
	l.current = current
	l.previous = previous
}

// InitCash 返回初始资金。
func (l *Ledger) InitCash() float64 { return l.initCash }

// Cash 返回当前现金。
func (l *Ledger) Cash() float64 { return l.cash }

// PortfolioValue 返回最近一次重估后的组合价值。
func (l *Ledger) PortfolioValue() float64 { return l.portfolioValue }

// PremiumValue 返回期权持仓的市值合计。
func (l *Ledger) PremiumValue() float64 { return l.premiumValue }

// NominalValue 返回带符号的名义敞口合计。
func (l *Ledger) NominalValue() float64 { return l.nominalValue }

// Position 返回指定合约持仓的副本。
func (l *Ledger) Position(uniID string) (Position, bool) {
	pos, ok := l.positions[uniID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions 返回持仓表的深拷贝，调用方修改副本不影响账本。
func (l *Ledger) Positions() map[string]Position {
	out := make(map[string]Position, len(l.positions))
	for id, pos := range l.positions {
		out[id] = *pos
	}
	return out
}

// Orders 返回全部订单记录的副本。
func (l *Ledger) Orders() []Order {
	return append([]Order(nil), l.orders...)
}

// Transactions 返回全部成交流水的副本。
func (l *Ledger) Transactions() []Transaction {
	return append([]Transaction(nil), l.transactions...)
}

// TransactionsAt 返回指定交易日的成交流水。
func (l *Ledger) TransactionsAt(day time.Time) []Transaction {
	var out []Transaction
	for _, tx := range l.transactions {
		if tx.Time.Equal(day) {
			out = append(out, tx)
		}
	}
	return out
}

// Submit 处理一笔下单请求，返回实际成交数量。
// 结构性失败（定价链落空）直接上抛；业务性拒绝（超卖/超买平仓）
// 返回对应错误且账本保持不变。
func (l *Ledger) Submit(req OrderRequest) (int64, error) {
	if req.Quantity <= 0 {
		l.appendOrder(req, 0, 0, StatusCancelled)
		return 0, nil
	}

	quote, source, err := l.resolveQuote(req.UniID, req.Kind)
	if err != nil {
		return 0, err
	}
	price := l.fillPrice(quote, req.Kind)
	if source != "snapshot" {
		l.logger.Debug("使用回退价格源",
			zap.String("uni_id", req.UniID),
			zap.String("source", source),
			zap.Float64("price", price))
	}

	switch req.Side {
	case SideBuy:
		return l.executeBuy(req, quote, price)
	case SideSell:
		return l.executeSell(req, quote, price)
	default:
		l.appendOrder(req, 0, price, StatusCancelled)
		return 0, nil
	}
}

// executeBuy 执行买入：平空校验、资金不足缩量、加权均价更新。
func (l *Ledger) executeBuy(req OrderRequest, quote market.Quote, price float64) (int64, error) {
	pos := l.positions[req.UniID]
	covering := pos != nil && pos.Shares < 0

	if covering && req.Quantity > -pos.Shares {
		return 0, &OverCoverError{Time: l.now, UniID: req.UniID, Short: -pos.Shares, Requested: req.Quantity}
	}

	unitCost := price * req.Multiplier
	if req.Kind == market.AssetFuture {
		unitCost = price * req.Multiplier * req.MarginRatio
	}

	quantity := req.Quantity
	if !covering {
		quantity = l.reduceForFunds(quantity, unitCost)
		if quantity <= 0 {
			l.appendOrder(req, 0, price, StatusCancelled)
			return 0, nil
		}
	}

	commission := quote.StrikePrice * float64(quantity) * l.commissionRate

	switch {
	case covering:
		// 平空：现金按名义支出，份额向零回补，均价不变。
		l.cash -= l.closeCashDelta(pos, quantity, price, SideBuy)
		l.cash -= commission
		pos.Shares += quantity
		if pos.Shares == 0 {
			delete(l.positions, req.UniID)
		}
	case pos != nil:
		// 同向加仓：现金加权均价。
		old := pos.Shares
		pos.AvgPrice = (float64(old)*pos.AvgPrice + float64(quantity)*price) / float64(old+quantity)
		pos.Shares += quantity
		l.cash -= float64(quantity)*unitCost + commission
	default:
		l.openPosition(req, quote, price, quantity)
		l.cash -= float64(quantity)*unitCost + commission
	}

	status := StatusFilled
	if quantity < req.Quantity {
		status = StatusPartiallyFilled
	}
	l.appendOrder(req, quantity, price, status)
	l.appendTransaction(req.UniID, SideBuy, quantity, price)
	return quantity, nil
}

// executeSell 执行卖出：平多校验、开空/加空的加权均价更新。
func (l *Ledger) executeSell(req OrderRequest, quote market.Quote, price float64) (int64, error) {
	pos := l.positions[req.UniID]
	closingLong := pos != nil && pos.Shares > 0

	if closingLong && req.Quantity > pos.Shares {
		return 0, &OverSellError{Time: l.now, UniID: req.UniID, Long: pos.Shares, Requested: req.Quantity}
	}

	quantity := req.Quantity
	if req.Kind == market.AssetFuture && !closingLong {
		// 开空同样占用保证金，资金不足时缩量。
		quantity = l.reduceForFunds(quantity, price*req.Multiplier*req.MarginRatio)
		if quantity <= 0 {
			l.appendOrder(req, 0, price, StatusCancelled)
			return 0, nil
		}
	}

	commission := quote.StrikePrice * float64(quantity) * l.commissionRate

	switch {
	case closingLong:
		l.cash += l.closeCashDelta(pos, quantity, price, SideSell)
		l.cash -= commission
		pos.Shares -= quantity
		if pos.Shares == 0 {
			delete(l.positions, req.UniID)
		}
	case pos != nil:
		// 加空：按份额绝对值做加权均价。
		old := -pos.Shares
		pos.AvgPrice = (float64(old)*pos.AvgPrice + float64(quantity)*price) / float64(old+quantity)
		pos.Shares -= quantity
		l.cash += l.openCashDelta(req, quantity, price)
		l.cash -= commission
	default:
		l.openPosition(req, quote, price, -quantity)
		l.cash += l.openCashDelta(req, quantity, price)
		l.cash -= commission
	}

	status := StatusFilled
	if quantity < req.Quantity {
		status = StatusPartiallyFilled
	}
	l.appendOrder(req, quantity, price, status)
	l.appendTransaction(req.UniID, SideSell, quantity, price)
	return quantity, nil
}

// reduceForFunds 资金不足时按可用现金缩减数量，不视为错误。
func (l *Ledger) reduceForFunds(quantity int64, unitCost float64) int64 {
	if unitCost <= 0 {
		return quantity
	}
	if l.cash <= 0 {
		return 0
	}
	if float64(quantity)*unitCost <= l.cash {
		return quantity
	}
	return int64(math.Floor(l.cash / unitCost))
}

// openCashDelta 计算开空一侧的现金变动（正值为收入）。
// 期权卖出收取权利金；期货开空支出保证金。
func (l *Ledger) openCashDelta(req OrderRequest, quantity int64, price float64) float64 {
	if req.Kind == market.AssetFuture {
		return -float64(quantity) * price * req.Multiplier * req.MarginRatio
	}
	return float64(quantity) * price * req.Multiplier
}

// closeCashDelta 计算平仓一侧的现金绝对变动。
// 期权按名义对称收付；期货释放保证金并结算浮动盈亏。
func (l *Ledger) closeCashDelta(pos *Position, quantity int64, price float64, side Side) float64 {
	if pos.Kind != market.AssetFuture {
		return float64(quantity) * price * pos.Multiplier
	}
	margin := float64(quantity) * pos.AvgPrice * pos.Multiplier * pos.MarginRatio
	pnl := float64(quantity) * (price - pos.AvgPrice) * pos.Multiplier
	if side == SideBuy {
		// 买入平空，价差收益方向取反。
		pnl = -pnl
	}
	return margin + pnl
}

func (l *Ledger) openPosition(req OrderRequest, quote market.Quote, price float64, shares int64) {
	l.positions[req.UniID] = &Position{
		UniID:           req.UniID,
		Shares:          shares,
		AvgPrice:        price,
		Multiplier:      req.Multiplier,
		Kind:            req.Kind,
		MarginRatio:     req.MarginRatio,
		StrikePrice:     quote.StrikePrice,
		Right:           quote.OptionRight,
		UnderlyingID:    quote.UnderlyingID,
		DeListedDate:    quote.DeListedDate,
		EntryUnderlying: quote.UnderlyingClose,
		LastPrice:       price,
		LastUnderlying:  quote.UnderlyingClose,
	}
}

func (l *Ledger) appendOrder(req OrderRequest, filled int64, price float64, status OrderStatus) {
	l.orders = append(l.orders, Order{
		ID:        int64(len(l.orders) + 1),
		Time:      l.now,
		UniID:     req.UniID,
		Side:      req.Side,
		Kind:      req.Kind,
		Requested: req.Quantity,
		Filled:    filled,
		Price:     price,
		Status:    status,
	})
}

func (l *Ledger) appendTransaction(uniID string, side Side, quantity int64, price float64) {
	l.transactions = append(l.transactions, Transaction{
		Time:     l.now,
		UniID:    uniID,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	})
}

// SettleExpirations 对到期合约做现金结算并删除持仓。
// 必须在当日盯市重估之前执行，避免到期仓位被重复计入。
func (l *Ledger) SettleExpirations() error {
	for _, id := range l.sortedPositionIDs() {
		pos := l.positions[id]
		if !pos.expiresOn(l.now) {
			continue
		}

		var settlement, settlePrice float64
		switch pos.Kind {
		case market.AssetOption:
			underlying := l.settlementUnderlying(pos)
			intrinsic := pos.intrinsicValue(underlying)
			settlement = intrinsic * float64(pos.Shares) * pos.Multiplier
			settlePrice = intrinsic
		case market.AssetFuture:
			price := pos.LastPrice
			if close, ok := l.underlyingCloseFromSnapshots(pos.UniID); ok {
				price = close
			}
			settlement = pos.futureValue(price)
			settlePrice = price
		}

		l.cash += settlement
		shares := pos.Shares
		delete(l.positions, id)

		l.appendOrder(OrderRequest{
			UniID: id, Side: SideSettle, Quantity: abs64(shares),
			Kind: pos.Kind, Multiplier: pos.Multiplier, MarginRatio: pos.MarginRatio,
		}, abs64(shares), settlePrice, StatusFilled)
		l.appendTransaction(id, SideSettle, shares, settlePrice)

		l.logger.Debug("到期结算",
			zap.Time("date", l.now),
			zap.String("uni_id", id),
			zap.Float64("settlement", settlement))
	}
	return nil
}

// settlementUnderlying 解析到期结算用的标的收盘价：
// 当日快照 -> 上一快照 -> 盯市缓存 -> 开仓参考价。
func (l *Ledger) settlementUnderlying(pos *Position) float64 {
	if close, ok := l.underlyingCloseFromSnapshots(pos.UnderlyingID); ok {
		return close
	}
	if pos.LastUnderlying > 0 {
		return pos.LastUnderlying
	}
	return pos.EntryUnderlying
}

func (l *Ledger) underlyingCloseFromSnapshots(uniID string) (float64, bool) {
	if close, ok := l.current.UnderlyingClose(uniID); ok {
		return close, true
	}
	return l.previous.UnderlyingClose(uniID)
}

// Revalue 依据存续持仓与当前快照重估组合价值、权利金价值与名义敞口。
// 对同一账本与快照状态重复调用结果不变。
func (l *Ledger) Revalue() error {
	var positionValue, premiumValue, nominalValue float64

	for _, id := range l.sortedPositionIDs() {
		pos := l.positions[id]
		quote, _, err := l.resolveQuote(id, pos.Kind)
		if err != nil {
			return err
		}

		switch pos.Kind {
		case market.AssetOption:
			price := quote.Close
			pos.LastPrice = price
			if quote.UnderlyingClose > 0 {
				pos.LastUnderlying = quote.UnderlyingClose
			}
			underlying := pos.LastUnderlying
			if underlying == 0 {
				underlying = pos.EntryUnderlying
			}
			pos.MarketValue = float64(pos.Shares) * price * pos.Multiplier
			pos.NominalValue = float64(pos.Shares) * pos.Multiplier * underlying
			positionValue += pos.MarketValue
			premiumValue += pos.MarketValue
			// 期权名义敞口与标的方向相反。
			nominalValue -= pos.NominalValue
		case market.AssetFuture:
			price := quote.Close
			if quote.UnderlyingClose > 0 {
				price = quote.UnderlyingClose
			}
			pos.LastPrice = price
			pos.MarketValue = pos.futureValue(price)
			pos.NominalValue = float64(pos.Shares) * pos.Multiplier * price
			positionValue += pos.MarketValue
			nominalValue += pos.NominalValue
		}
	}

	l.portfolioValue = l.cash + positionValue
	l.premiumValue = premiumValue
	l.nominalValue = nominalValue
	return nil
}

// CloseAll 对全部持仓反向平仓，供策略的移仓逻辑调用。
// 单笔失败不中断其余平仓，错误聚合后返回。
func (l *Ledger) CloseAll() error {
	var errs error
	for _, id := range l.sortedPositionIDs() {
		pos, ok := l.positions[id]
		if !ok {
			continue
		}
		req := OrderRequest{
			UniID:       id,
			Kind:        pos.Kind,
			Multiplier:  pos.Multiplier,
			MarginRatio: pos.MarginRatio,
		}
		if pos.Shares > 0 {
			req.Side = SideSell
			req.Quantity = pos.Shares
		} else {
			req.Side = SideBuy
			req.Quantity = -pos.Shares
		}
		if _, err := l.Submit(req); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (l *Ledger) sortedPositionIDs() []string {
	ids := make([]string, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
