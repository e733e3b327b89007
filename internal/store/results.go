package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YuweiUltra/Option-CFFEX/internal/backtest"
)

const dateLayout = "2006-01-02"

const createResultsTable = `
CREATE TABLE IF NOT EXISTS results (
    run_id          TEXT NOT NULL,
    date            TEXT NOT NULL,
    portfolio_value REAL NOT NULL,
    cash            REAL NOT NULL,
    positions       TEXT NOT NULL,
    transactions    TEXT NOT NULL,
    daily_return    REAL NOT NULL,
    event           TEXT NOT NULL,
    PRIMARY KEY (run_id, date)
);`

// SaveResults 将一次回放的完整结果序列写入 results 表。
func (s *Store) SaveResults(ctx context.Context, runID string, log *backtest.ResultLog) error {
	if _, err := s.db.ExecContext(ctx, createResultsTable); err != nil {
		return fmt.Errorf("创建 results 表失败: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO results
(run_id, date, portfolio_value, cash, positions, transactions, daily_return, event)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range log.Rows() {
		positions, err := json.Marshal(row.Positions)
		if err != nil {
			return fmt.Errorf("序列化持仓失败: %w", err)
		}
		transactions, err := json.Marshal(row.Transactions)
		if err != nil {
			return fmt.Errorf("序列化成交流水失败: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			row.Date.Format(dateLayout),
			row.PortfolioValue,
			row.Cash,
			string(positions),
			string(transactions),
			row.DailyReturn,
			row.Event,
		); err != nil {
			return fmt.Errorf("写入结果行 %s 失败: %w", row.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交结果失败: %w", err)
	}
	return nil
}

// ResultDates 返回指定运行已落库的结果日期，按日期升序。
func (s *Store) ResultDates(ctx context.Context, runID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date FROM results WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询结果日期失败: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("读取结果日期失败: %w", err)
		}
		day, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("解析结果日期 %q 失败: %w", raw, err)
		}
		out = append(out, day)
	}
	return out, rows.Err()
}
