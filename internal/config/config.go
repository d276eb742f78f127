package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"optionsagent/internal/scanner"
)

// DefaultWatchlist 无配置文件时的默认关注列表。
var DefaultWatchlist = []string{
	"SPY", "QQQ", "TSLA", "AAPL", "NVDA", "META",
	"AMZN", "AMD", "MSFT", "GOOGL", "NFLX", "COIN",
}

// PolygonConfig 行情网关设置。APIKey 可被环境变量 POLYGON_API_KEY 覆盖。
type PolygonConfig struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	TimeoutSec   int    `toml:"timeout_sec"`
	RequestDelay string `toml:"request_delay"` // 免费档限速，如 "12s"
}

// AnalysisConfig 技术分析与 IV 分析参数。
type AnalysisConfig struct {
	PriceHistoryDays int `toml:"price_history_days"`
	IVLookbackDays   int `toml:"iv_lookback_days"`
	DefaultDTE       int `toml:"default_dte"`
	MinDTE           int `toml:"min_dte"`
	MaxDTE           int `toml:"max_dte"`
}

// ServerConfig HTTP 服务设置。
type ServerConfig struct {
	Listen string `toml:"listen"`
	Mode   string `toml:"mode"` // gin debug / release
}

// CollectorConfig 定时任务设置，cron 表达式使用本地时区。
type CollectorConfig struct {
	Enabled      bool   `toml:"enabled"`
	DailySpec    string `toml:"daily_spec"`
	IntradaySpec string `toml:"intraday_spec"`
	MarketOpen   string `toml:"market_open"`  // "09:30"
	MarketClose  string `toml:"market_close"` // "16:00"
	SkipWeekends bool   `toml:"skip_weekends"`
}

// Config 应用全量配置。
type Config struct {
	Watchlist   []string           `toml:"watchlist"`
	DBPath      string             `toml:"db_path"`
	LogLevel    string             `toml:"log_level"`
	AccountSize float64            `toml:"account_size"`
	RiskLevel   string             `toml:"risk_level"`
	Polygon     PolygonConfig      `toml:"polygon"`
	Analysis    AnalysisConfig     `toml:"analysis"`
	Scanner     scanner.Thresholds `toml:"scanner"`
	Server      ServerConfig       `toml:"server"`
	Collector   CollectorConfig    `toml:"collector"`
}

// Load 读取 TOML 配置；文件不存在时返回纯默认配置。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return Normalize(cfg), nil
}

// Normalize fills in default values for missing fields.
func Normalize(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = append([]string(nil), DefaultWatchlist...)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/iv_history.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AccountSize <= 0 {
		cfg.AccountSize = 10000
	}
	if cfg.RiskLevel == "" {
		cfg.RiskLevel = "moderate"
	}
	if key := os.Getenv("POLYGON_API_KEY"); key != "" {
		cfg.Polygon.APIKey = key
	}
	if cfg.Polygon.BaseURL == "" {
		cfg.Polygon.BaseURL = "https://api.polygon.io"
	}
	if cfg.Polygon.TimeoutSec <= 0 {
		cfg.Polygon.TimeoutSec = 30
	}
	if cfg.Polygon.RequestDelay == "" {
		cfg.Polygon.RequestDelay = "12s"
	}
	if cfg.Analysis.PriceHistoryDays <= 0 {
		cfg.Analysis.PriceHistoryDays = 365
	}
	if cfg.Analysis.IVLookbackDays <= 0 {
		cfg.Analysis.IVLookbackDays = 252
	}
	if cfg.Analysis.DefaultDTE <= 0 {
		cfg.Analysis.DefaultDTE = 30
	}
	if cfg.Analysis.MinDTE <= 0 {
		cfg.Analysis.MinDTE = 20
	}
	if cfg.Analysis.MaxDTE <= 0 {
		cfg.Analysis.MaxDTE = 45
	}
	cfg.Scanner = scanner.NormalizeThresholds(cfg.Scanner)
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8090"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Collector.DailySpec == "" {
		cfg.Collector.DailySpec = "30 16 * * 1-5"
	}
	if cfg.Collector.IntradaySpec == "" {
		cfg.Collector.IntradaySpec = "*/30 * * * 1-5"
	}
	if cfg.Collector.MarketOpen == "" {
		cfg.Collector.MarketOpen = "09:30"
	}
	if cfg.Collector.MarketClose == "" {
		cfg.Collector.MarketClose = "16:00"
	}
	return cfg
}

// RequestDelayDuration 解析限速间隔，解析失败时退回 12s。
func (p PolygonConfig) RequestDelayDuration() time.Duration {
	d, err := time.ParseDuration(p.RequestDelay)
	if err != nil || d < 0 {
		return 12 * time.Second
	}
	return d
}

// Timeout HTTP 客户端超时。
func (p PolygonConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}
