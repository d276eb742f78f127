package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"optionsagent/internal/analysis/indicator"
	"optionsagent/internal/analysis/voltrack"
	"optionsagent/internal/config"
	"optionsagent/internal/logger"
	"optionsagent/internal/market"
	"optionsagent/internal/report"
	"optionsagent/internal/scanner"
	"optionsagent/internal/store"
	"optionsagent/internal/strategy"
)

// Server wires the analysis engines behind a gin router.
type Server struct {
	cfg     *config.Config
	source  market.Source
	tracker *voltrack.Tracker
	scanner *scanner.Scanner
	ivStore store.IVStore
	hub     *AlertHub
}

func NewServer(cfg *config.Config, src market.Source, tracker *voltrack.Tracker, sc *scanner.Scanner, st store.IVStore, hub *AlertHub) *Server {
	return &Server{
		cfg:     cfg,
		source:  src,
		tracker: tracker,
		scanner: sc,
		ivStore: st,
		hub:     hub,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleStatus)
	r.GET("/ws/alerts", func(c *gin.Context) { s.hub.Serve(c.Writer, c.Request) })
	r.GET("/charts/:ticker", s.handleChart)

	api := r.Group("/api")
	{
		api.GET("/technical/:ticker", s.handleTechnical)
		api.GET("/iv/:ticker", s.handleIV)
		api.GET("/iv", s.handleIVDashboard)
		api.GET("/chain/:ticker", s.handleChain)
		api.GET("/scanner/unusual", s.handleScan)
		api.POST("/analyze", s.handleAnalyze)
	}
	return r
}

// Run 阻塞运行 HTTP 服务直到 ctx 取消。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Server.Listen, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] listening on %s", s.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "optionsagent",
		"watchlist":   s.cfg.Watchlist,
		"subscribers": s.hub.Subscribers(),
	})
}

func (s *Server) handleTechnical(c *gin.Context) {
	ticker := upperParam(c, "ticker")
	if ticker == "" {
		return
	}
	bars, err := s.source.FetchPriceSeries(c.Request.Context(), ticker, s.cfg.Analysis.PriceHistoryDays)
	if err != nil {
		logger.Errorf("[api] technical %s: fetch bars: %v", ticker, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	profile, err := indicator.ComputeProfile(ticker, bars)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, indicator.ErrInsufficientData) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleIV(c *gin.Context) {
	ticker := upperParam(c, "ticker")
	if ticker == "" {
		return
	}
	profile, err := s.tracker.Profile(c.Request.Context(), ticker, s.cfg.Analysis.IVLookbackDays)
	if err != nil {
		logger.Errorf("[api] iv %s: %v", ticker, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleIVDashboard(c *gin.Context) {
	rows := s.tracker.Dashboard(c.Request.Context(), s.cfg.Watchlist)
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) handleChain(c *gin.Context) {
	ticker := upperParam(c, "ticker")
	if ticker == "" {
		return
	}
	window := market.ExpirationWindow{MinDTE: 3, MaxDTE: 60}
	snap, err := s.source.FetchChainSnapshot(c.Request.Context(), ticker, window)
	if err != nil {
		logger.Errorf("[api] chain %s: %v", ticker, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":   scanner.Summarize(snap),
		"snapshot":  snap,
		"contracts": len(snap.Contracts),
	})
}

func (s *Server) handleScan(c *gin.Context) {
	tickers := splitTickers(c.Query("tickers"))
	if len(tickers) == 0 {
		tickers = s.cfg.Watchlist
	}
	window := market.ExpirationWindow{MinDTE: 3, MaxDTE: 60}
	alerts := s.scanner.ScanBatch(c.Request.Context(), s.source, tickers, window)
	if len(alerts) > 0 {
		s.hub.Broadcast(gin.H{"kind": "unusual_activity", "alerts": alerts})
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers, "alerts": alerts})
}

// AnalyzeRequest POST /api/analyze 请求体。
// Trend 为空时取技术面引擎的结论；ATR 同理。
type AnalyzeRequest struct {
	Ticker      string   `json:"ticker" binding:"required"`
	Trend       string   `json:"trend"`
	DTE         int      `json:"dte"`
	RiskLevel   string   `json:"risk_level"`
	AccountSize float64  `json:"account_size"`
	ATR         *float64 `json:"atr"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	// 现价始终取自行情，请求里的 trend/ATR 只作覆盖
	bars, err := s.source.FetchPriceSeries(c.Request.Context(), ticker, s.cfg.Analysis.PriceHistoryDays)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	technical, err := indicator.ComputeProfile(ticker, bars)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	price := technical.CurrentPrice
	trend := req.Trend
	if trend == "" {
		trend = technical.Signal
	}
	atr := req.ATR
	if atr == nil {
		atr = technical.ATR
	}

	ivProfile, err := s.tracker.Profile(c.Request.Context(), ticker, s.cfg.Analysis.IVLookbackDays)
	if err != nil {
		logger.Warnf("[api] analyze %s: iv profile: %v", ticker, err)
		ivProfile = &voltrack.IVProfile{Ticker: ticker}
	}

	dte := req.DTE
	if dte <= 0 {
		dte = s.cfg.Analysis.DefaultDTE
	}
	riskLevel := req.RiskLevel
	if riskLevel == "" {
		riskLevel = s.cfg.RiskLevel
	}
	accountSize := req.AccountSize
	if accountSize <= 0 {
		accountSize = s.cfg.AccountSize
	}

	recs := strategy.Recommend(strategy.Params{
		Ticker:       ticker,
		Price:        price,
		Trend:        trend,
		IVPercentile: ivProfile.IVPercentile,
		DTE:          dte,
		RiskLevel:    riskLevel,
		AccountSize:  accountSize,
		ATR:          atr,
	})

	c.JSON(http.StatusOK, gin.H{
		"ticker":     ticker,
		"technical":  technical,
		"iv":         ivProfile,
		"strategies": recs,
	})
}

func (s *Server) handleChart(c *gin.Context) {
	ticker := upperParam(c, "ticker")
	if ticker == "" {
		return
	}
	bars, err := s.source.FetchPriceSeries(c.Request.Context(), ticker, 180)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	samples, err := s.ivStore.History(c.Request.Context(), ticker, s.cfg.Analysis.IVLookbackDays)
	if err != nil {
		logger.Warnf("[api] chart %s: iv history: %v", ticker, err)
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderChartPage(c.Writer, ticker, bars, samples); err != nil {
		logger.Errorf("[api] chart %s: render: %v", ticker, err)
	}
}

func upperParam(c *gin.Context, name string) string {
	v := strings.ToUpper(strings.TrimSpace(c.Param(name)))
	if v == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 " + name})
	}
	return v
}

func splitTickers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
