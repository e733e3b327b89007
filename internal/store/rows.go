package store

import (
	"context"
	"fmt"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// 清洗后的行情输入表。列名即数据契约，RowSource 的 Load 原样上报，
// 交易所模拟器据此做必需列校验。
var optionColumns = []string{
	"uni_id", "date", "exchange", "type",
	"open", "high", "low", "close", "close_adj", "volume",
	"listed_date", "de_listed_date",
	"strike_price", "option_type", "underlying_id",
}

const createOptionRowsTable = `
CREATE TABLE IF NOT EXISTS option_rows (
    uni_id         TEXT NOT NULL,
    date           TEXT NOT NULL,
    exchange       TEXT NOT NULL,
    type           INTEGER NOT NULL,
    open           REAL NOT NULL DEFAULT 0,
    high           REAL NOT NULL DEFAULT 0,
    low            REAL NOT NULL DEFAULT 0,
    close          REAL NOT NULL DEFAULT 0,
    close_adj      REAL NOT NULL DEFAULT 0,
    volume         REAL NOT NULL DEFAULT 0,
    listed_date    TEXT NOT NULL,
    de_listed_date TEXT NOT NULL,
    strike_price   REAL NOT NULL DEFAULT 0,
    option_type    TEXT NOT NULL DEFAULT '',
    underlying_id  TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (uni_id, date)
);`

const createFutureRowsTable = `
CREATE TABLE IF NOT EXISTS future_rows (
    uni_id                   TEXT NOT NULL,
    date                     TEXT NOT NULL,
    close                    REAL NOT NULL DEFAULT 0,
    underlying_order_book_id TEXT NOT NULL DEFAULT '',
    maturity_date            TEXT NOT NULL,
    PRIMARY KEY (uni_id, date)
);`

// InitMarketSchema 建立行情输入表。
func (s *Store) InitMarketSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createOptionRowsTable); err != nil {
		return fmt.Errorf("创建 option_rows 表失败: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createFutureRowsTable); err != nil {
		return fmt.Errorf("创建 future_rows 表失败: %w", err)
	}
	return nil
}

// SaveOptionRows 批量写入期权行情，供数据导入协作方使用。
func (s *Store) SaveOptionRows(ctx context.Context, rows []market.Row) error {
	if err := s.InitMarketSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO option_rows
(uni_id, date, exchange, type, open, high, low, close, close_adj, volume,
 listed_date, de_listed_date, strike_price, option_type, underlying_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.UniID, row.Date.Format(dateLayout), row.Exchange, int(row.Kind),
			row.Open, row.High, row.Low, row.Close, row.CloseAdj, row.Volume,
			row.ListedDate.Format(dateLayout), row.DeListedDate.Format(dateLayout),
			row.StrikePrice, string(row.OptionRight), row.UnderlyingID,
		); err != nil {
			return fmt.Errorf("写入行情行 (%s, %s) 失败: %w", row.UniID, row.Date.Format(dateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交行情失败: %w", err)
	}
	return nil
}

// SaveFutureRows 批量写入标的期货行情。
func (s *Store) SaveFutureRows(ctx context.Context, rows []market.FutureRow) error {
	if err := s.InitMarketSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO future_rows
(uni_id, date, close, underlying_order_book_id, maturity_date)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.UniID, row.Date.Format(dateLayout), row.Close,
			row.UnderlyingOrderBookID, row.MaturityDate.Format(dateLayout),
		); err != nil {
			return fmt.Errorf("写入期货行 (%s, %s) 失败: %w", row.UniID, row.Date.Format(dateLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交期货行情失败: %w", err)
	}
	return nil
}

// LoadOptionTable 读取全部期权行情并组装成数据契约表。
func (s *Store) LoadOptionTable(ctx context.Context) (market.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT uni_id, date, exchange, type, open, high, low, close, close_adj, volume,
       listed_date, de_listed_date, strike_price, option_type, underlying_id
FROM option_rows ORDER BY date, uni_id`)
	if err != nil {
		return market.Table{}, fmt.Errorf("查询期权行情失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	table := market.Table{Columns: append([]string(nil), optionColumns...)}
	for rows.Next() {
		var (
			row                           market.Row
			date, listed, deListed, right string
			kind                          int
		)
		if err := rows.Scan(&row.UniID, &date, &row.Exchange, &kind,
			&row.Open, &row.High, &row.Low, &row.Close, &row.CloseAdj, &row.Volume,
			&listed, &deListed, &row.StrikePrice, &right, &row.UnderlyingID,
		); err != nil {
			return market.Table{}, fmt.Errorf("读取期权行情失败: %w", err)
		}
		row.Kind = market.AssetKind(kind)
		row.OptionRight = market.OptionRight(right)
		if row.Date, err = parseDate(date); err != nil {
			return market.Table{}, err
		}
		if row.ListedDate, err = parseDate(listed); err != nil {
			return market.Table{}, err
		}
		if row.DeListedDate, err = parseDate(deListed); err != nil {
			return market.Table{}, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

// LoadFutureRows 读取全部标的期货行情。
func (s *Store) LoadFutureRows(ctx context.Context) ([]market.FutureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT uni_id, date, close, underlying_order_book_id, maturity_date
FROM future_rows ORDER BY date, uni_id`)
	if err != nil {
		return nil, fmt.Errorf("查询期货行情失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []market.FutureRow
	for rows.Next() {
		var (
			row            market.FutureRow
			date, maturity string
		)
		if err := rows.Scan(&row.UniID, &date, &row.Close,
			&row.UnderlyingOrderBookID, &maturity); err != nil {
			return nil, fmt.Errorf("读取期货行情失败: %w", err)
		}
		if row.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if row.MaturityDate, err = parseDate(maturity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RowSource 基于 SQLite 实现交易所模拟器的数据源契约。
type RowSource struct {
	store *Store
}

// NewRowSource 构建 SQLite 数据源。
func NewRowSource(store *Store) *RowSource {
	return &RowSource{store: store}
}

// Load 实现 exchange.DataSource。模拟器只在首次推进时调用，
// 之后命中其自身的内存缓存。
func (r *RowSource) Load(ctx context.Context) (market.Table, error) {
	return r.store.LoadOptionTable(ctx)
}

func parseDate(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析日期 %q 失败: %w", raw, err)
	}
	return day, nil
}
