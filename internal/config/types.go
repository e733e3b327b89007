package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/YuweiUltra/Option-CFFEX/internal/market"
)

// Config 聚合一次回测运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BacktestConfig 描述回测的市场与账户参数。
type BacktestConfig struct {
	InitCash           float64   `mapstructure:"init_cash"`
	ExchangeSymbol     string    `mapstructure:"exchange_symbol"`
	AssetKind          string    `mapstructure:"asset_kind"`
	StartDate          time.Time `mapstructure:"start_date"`
	EndDate            time.Time `mapstructure:"end_date"`
	InstrumentPrefixes []string  `mapstructure:"instrument_prefixes"`
	OptionRight        string    `mapstructure:"option_right"`
	Multiplier         float64   `mapstructure:"multiplier"`
	CommissionRate     float64   `mapstructure:"commission_rate"`
	FillMode           string    `mapstructure:"fill_mode"`
}

// Kind 返回解析后的资产类别。
func (c BacktestConfig) Kind() market.AssetKind {
	kind, _ := market.ParseAssetKind(c.AssetKind)
	return kind
}

// StrategyConfig 控制默认认沽价差策略的腿位与移仓参数。
type StrategyConfig struct {
	RollThresholdDays int   `mapstructure:"roll_threshold_days"`
	LongRank          int   `mapstructure:"long_rank"`
	LongCount         int64 `mapstructure:"long_count"`
	ShortRank         int   `mapstructure:"short_rank"`
	ShortCount        int64 `mapstructure:"short_count"`
}

// DatabaseConfig 管理 SQLite 连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置做基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Backtest.InitCash < 0 {
		err = multierr.Append(err, errors.New("backtest.init_cash 不能为负"))
	}
	if c.Backtest.ExchangeSymbol == "" {
		err = multierr.Append(err, errors.New("backtest.exchange_symbol 不能为空"))
	}
	if _, ok := market.ParseAssetKind(c.Backtest.AssetKind); !ok {
		err = multierr.Append(err, fmt.Errorf("backtest.asset_kind 无效: %q", c.Backtest.AssetKind))
	}
	if c.Backtest.StartDate.IsZero() || c.Backtest.EndDate.IsZero() {
		err = multierr.Append(err, errors.New("backtest.start_date 与 end_date 不能为空"))
	} else if !c.Backtest.StartDate.Before(c.Backtest.EndDate) {
		err = multierr.Append(err, errors.New("backtest.start_date 必须早于 end_date"))
	}
	if len(c.Backtest.InstrumentPrefixes) == 0 {
		err = multierr.Append(err, errors.New("backtest.instrument_prefixes 至少包含一个前缀"))
	}
	if right := c.Backtest.OptionRight; right != "C" && right != "P" {
		err = multierr.Append(err, fmt.Errorf("backtest.option_right 无效: %q", right))
	}
	if c.Backtest.Multiplier <= 0 {
		err = multierr.Append(err, errors.New("backtest.multiplier 必须大于0"))
	}
	if c.Backtest.CommissionRate < 0 {
		err = multierr.Append(err, errors.New("backtest.commission_rate 不能为负"))
	}
	if mode := c.Backtest.FillMode; mode != "close" && mode != "mid" {
		err = multierr.Append(err, fmt.Errorf("backtest.fill_mode 无效: %q", mode))
	}
	if c.Strategy.RollThresholdDays <= 0 {
		err = multierr.Append(err, errors.New("strategy.roll_threshold_days 必须大于0"))
	}
	if c.Strategy.LongRank < 0 || c.Strategy.ShortRank < 0 {
		err = multierr.Append(err, errors.New("strategy.long_rank 与 short_rank 不能为负"))
	}
	if c.Strategy.LongCount <= 0 || c.Strategy.ShortCount <= 0 {
		err = multierr.Append(err, errors.New("strategy.long_count 与 short_count 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
