package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"optionsagent/internal/config"
	"optionsagent/internal/logger"
	"optionsagent/internal/market"
)

// Client 通过 Polygon.io REST API 实现 market.Source。
// 免费档限速很紧（5 req/min），所有请求前都会等待固定间隔。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	delay   time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

func NewClient(cfg config.PolygonConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout()},
		delay:   cfg.RequestDelayDuration(),
	}
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// throttle 串行化请求并保证相邻请求间隔不小于 delay。
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wait := c.delay - time.Since(c.lastCall)
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastCall = time.Now()
	return nil
}

// getJSON 发送一次带限速的 GET 并解码响应体。
// rawURL 可以是相对路径或 next_url 返回的完整链接。
func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	full := rawURL
	if !strings.HasPrefix(rawURL, "http") {
		full = c.baseURL + rawURL
	}
	u, err := url.Parse(full)
	if err != nil {
		return fmt.Errorf("polygon: bad url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("polygon: request %s: %w", u.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("polygon: read %s: %w", u.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polygon: %s returned %d: %s", u.Path, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("polygon: decode %s: %w", u.Path, err)
	}
	return nil
}

type aggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Timestamp int64   `json:"t"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
	} `json:"results"`
}

// FetchPriceSeries 拉取最近 days 天日线，按日期升序。
func (c *Client) FetchPriceSeries(ctx context.Context, ticker string, days int) ([]market.Bar, error) {
	if days <= 0 {
		days = 180
	}
	now := time.Now()
	from := now.AddDate(0, 0, -days).Format(market.DateLayout)
	to := now.Format(market.DateLayout)

	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(ticker), from, to)
	err := c.getJSON(ctx, path, url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {"50000"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	bars := make([]market.Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, market.Bar{
			Date:   time.UnixMilli(r.Timestamp),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: int64(r.Volume),
		})
	}
	return bars, nil
}

// previousClose 取前收，作为快照价的兜底。
func (c *Client) previousClose(ctx context.Context, ticker string) (float64, error) {
	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(ticker))
	if err := c.getJSON(ctx, path, url.Values{"adjusted": {"true"}}, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("polygon: no previous close for %s", ticker)
	}
	return resp.Results[0].Close, nil
}

type chainResponse struct {
	Status  string `json:"status"`
	NextURL string `json:"next_url"`
	Results []struct {
		Details struct {
			Ticker         string  `json:"ticker"`
			ContractType   string  `json:"contract_type"`
			StrikePrice    float64 `json:"strike_price"`
			ExpirationDate string  `json:"expiration_date"`
		} `json:"details"`
		Day struct {
			Volume float64 `json:"volume"`
		} `json:"day"`
		LastQuote struct {
			Bid float64 `json:"bid"`
			Ask float64 `json:"ask"`
		} `json:"last_quote"`
		OpenInterest      float64 `json:"open_interest"`
		ImpliedVolatility float64 `json:"implied_volatility"`
		UnderlyingAsset   struct {
			Price float64 `json:"price"`
		} `json:"underlying_asset"`
	} `json:"results"`
}

// FetchChainSnapshot 拉取到期窗口内的全部合约，跟随 next_url 翻页。
func (c *Client) FetchChainSnapshot(ctx context.Context, ticker string, window market.ExpirationWindow) (*market.ChainSnapshot, error) {
	return c.fetchChain(ctx, ticker, window, "")
}

func (c *Client) fetchChain(ctx context.Context, ticker string, window market.ExpirationWindow, contractType string) (*market.ChainSnapshot, error) {
	now := time.Now()
	query := url.Values{
		"expiration_date.gte": {now.AddDate(0, 0, window.MinDTE).Format(market.DateLayout)},
		"expiration_date.lte": {now.AddDate(0, 0, window.MaxDTE).Format(market.DateLayout)},
		"limit":               {"250"},
	}
	if contractType != "" {
		query.Set("contract_type", contractType)
	}

	snap := &market.ChainSnapshot{Ticker: ticker, AsOf: now}
	next := fmt.Sprintf("/v3/snapshot/options/%s", url.PathEscape(ticker))
	pages := 0
	for next != "" {
		var resp chainResponse
		if err := c.getJSON(ctx, next, query, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			exp, err := time.Parse(market.DateLayout, r.Details.ExpirationDate)
			if err != nil {
				logger.Debugf("[polygon] %s skip contract %s: bad expiration %q", ticker, r.Details.Ticker, r.Details.ExpirationDate)
				continue
			}
			snap.Contracts = append(snap.Contracts, market.Contract{
				Symbol:       r.Details.Ticker,
				Ticker:       ticker,
				Type:         market.OptionType(r.Details.ContractType),
				Strike:       r.Details.StrikePrice,
				Expiration:   exp,
				Bid:          r.LastQuote.Bid,
				Ask:          r.LastQuote.Ask,
				Volume:       int64(r.Day.Volume),
				OpenInterest: int64(r.OpenInterest),
				ImpliedVol:   r.ImpliedVolatility,
			})
			if snap.UnderlyingPrice == 0 && r.UnderlyingAsset.Price > 0 {
				snap.UnderlyingPrice = r.UnderlyingAsset.Price
			}
		}
		next = resp.NextURL
		query = nil // next_url 已携带过滤参数
		pages++
		if pages >= 40 {
			logger.Warnf("[polygon] %s chain pagination capped at %d pages", ticker, pages)
			break
		}
	}

	if snap.UnderlyingPrice == 0 {
		price, err := c.previousClose(ctx, ticker)
		if err != nil {
			logger.Warnf("[polygon] %s underlying price fallback failed: %v", ticker, err)
		} else {
			snap.UnderlyingPrice = price
		}
	}
	return snap, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
