package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"optionsagent/internal/market"
)

// IVStore 抽象：按 (ticker, date) 读写波动率样本。
// Upsert 对同一键是幂等覆盖（last-writer-wins）。
type IVStore interface {
	Upsert(ctx context.Context, sample market.VolSample) error
	// RecentIVs 返回 ATM IV 非空的最近 limit 个样本的 IV 值（按日期降序）。
	RecentIVs(ctx context.Context, ticker string, limit int) ([]float64, error)
	// Latest 返回最近一条样本；没有数据时返回 (nil, nil)。
	Latest(ctx context.Context, ticker string) (*market.VolSample, error)
	// History 返回最近 limit 条样本（按日期升序），供图表使用。
	History(ctx context.Context, ticker string, limit int) ([]market.VolSample, error)
	Close() error
}

// MemoryIVStore 内存实现，读写全程持锁。
type MemoryIVStore struct {
	mu   sync.RWMutex
	data map[string]map[string]market.VolSample // ticker -> date -> sample
}

func NewMemoryIVStore() *MemoryIVStore {
	return &MemoryIVStore{data: make(map[string]map[string]market.VolSample)}
}

func (s *MemoryIVStore) Upsert(ctx context.Context, sample market.VolSample) error {
	if sample.Ticker == "" || sample.Date == "" {
		return errors.New("ticker/date 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byDate := s.data[sample.Ticker]
	if byDate == nil {
		byDate = make(map[string]market.VolSample)
		s.data[sample.Ticker] = byDate
	}
	byDate[sample.Date] = sample
	return nil
}

// datesDesc 返回某 ticker 的全部日期，降序。DateLayout 保证字典序即时间序。
func (s *MemoryIVStore) datesDesc(ticker string) []string {
	byDate := s.data[ticker]
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

func (s *MemoryIVStore) RecentIVs(ctx context.Context, ticker string, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []float64
	for _, d := range s.datesDesc(ticker) {
		sample := s.data[ticker][d]
		if sample.ATMIV == nil {
			continue
		}
		out = append(out, *sample.ATMIV)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryIVStore) Latest(ctx context.Context, ticker string) (*market.VolSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := s.datesDesc(ticker)
	if len(dates) == 0 {
		return nil, nil
	}
	sample := s.data[ticker][dates[0]]
	return &sample, nil
}

func (s *MemoryIVStore) History(ctx context.Context, ticker string, limit int) ([]market.VolSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dates := s.datesDesc(ticker)
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	out := make([]market.VolSample, 0, len(dates))
	for i := len(dates) - 1; i >= 0; i-- { // 升序输出
		out = append(out, s.data[ticker][dates[i]])
	}
	return out, nil
}

func (s *MemoryIVStore) Close() error { return nil }
