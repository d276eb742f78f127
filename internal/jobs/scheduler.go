package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"optionsagent/internal/analysis/voltrack"
	"optionsagent/internal/config"
	"optionsagent/internal/logger"
	"optionsagent/internal/market"
	"optionsagent/internal/scanner"
)

// Broadcaster 接收扫描结果推送，通常是 websocket hub。
type Broadcaster interface {
	Broadcast(payload any)
}

// Scheduler 管理两个定时任务：
//   - 收盘后逐标的采集 IV/HV 样本；
//   - 盘中定期跑异动扫描并广播告警。
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	source  market.Source
	tracker *voltrack.Tracker
	scanner *scanner.Scanner
	hub     Broadcaster
	ctx     context.Context
}

func NewScheduler(ctx context.Context, cfg *config.Config, src market.Source, tracker *voltrack.Tracker, sc *scanner.Scanner, hub Broadcaster) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		source:  src,
		tracker: tracker,
		scanner: sc,
		hub:     hub,
		ctx:     ctx,
	}
}

// RegisterAll 注册每日采集与盘中扫描任务。
func (s *Scheduler) RegisterAll() error {
	if _, err := s.cron.AddFunc(s.cfg.Collector.DailySpec, s.dailyCollect); err != nil {
		return fmt.Errorf("register daily collect: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Collector.IntradaySpec, s.intradayScan); err != nil {
		return fmt.Errorf("register intraday scan: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infof("[jobs] scheduler started (daily=%q intraday=%q)", s.cfg.Collector.DailySpec, s.cfg.Collector.IntradaySpec)
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	logger.Infof("[jobs] scheduler stopped")
}

// RunDailyNow 手动触发一轮采集（collect 子命令复用）。
func (s *Scheduler) RunDailyNow() {
	s.dailyCollect()
}

// dailyCollect 为关注列表逐标的拉取波动率样本并入库。
// 单个标的失败只记日志，不中断整轮。
func (s *Scheduler) dailyCollect() {
	logger.Infof("[jobs] daily IV collection for %d tickers", len(s.cfg.Watchlist))
	ok := 0
	for _, ticker := range s.cfg.Watchlist {
		sample, err := s.source.FetchVolatilitySample(s.ctx, ticker)
		if err != nil {
			logger.Errorf("[jobs] collect %s: %v", ticker, err)
			continue
		}
		if err := s.tracker.Record(s.ctx, *sample); err != nil {
			logger.Errorf("[jobs] record %s: %v", ticker, err)
			continue
		}
		ok++
	}
	logger.Infof("[jobs] daily collection done: %d/%d", ok, len(s.cfg.Watchlist))
}

// intradayScan 盘中跑一轮异动扫描；非交易时段直接跳过。
func (s *Scheduler) intradayScan() {
	if !s.withinMarketHours(time.Now()) {
		logger.Debugf("[jobs] outside market hours, scan skipped")
		return
	}
	window := market.ExpirationWindow{MinDTE: 3, MaxDTE: 60}
	alerts := s.scanner.ScanBatch(s.ctx, s.source, s.cfg.Watchlist, window)
	logger.Infof("[jobs] intraday scan: %d alerts", len(alerts))
	if len(alerts) > 0 && s.hub != nil {
		s.hub.Broadcast(map[string]any{"kind": "unusual_activity", "alerts": alerts})
	}
}

// withinMarketHours 按本地时间粗判交易时段，cron 表达式已排掉大部分时间。
func (s *Scheduler) withinMarketHours(now time.Time) bool {
	if s.cfg.Collector.SkipWeekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	openMin, err1 := parseClock(s.cfg.Collector.MarketOpen)
	closeMin, err2 := parseClock(s.cfg.Collector.MarketClose)
	if err1 != nil || err2 != nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= openMin && minute <= closeMin
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
