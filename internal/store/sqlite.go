package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"optionsagent/internal/market"
)

const ivSchema = `
CREATE TABLE IF NOT EXISTS iv_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ticker      TEXT NOT NULL,
    date        TEXT NOT NULL,
    atm_iv      REAL,
    hv20        REAL,
    hv60        REAL,
    close_price REAL,
    UNIQUE(ticker, date)
);
CREATE INDEX IF NOT EXISTS ix_iv_ticker_date ON iv_history(ticker, date);
`

// SQLiteIVStore 持久化实现，写冲突由 sqlite 自身的单写序列化保证。
type SQLiteIVStore struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）样本库。
func OpenSQLite(path string) (*SQLiteIVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ivSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init iv_history schema: %w", err)
	}
	return &SQLiteIVStore{db: db}, nil
}

func (s *SQLiteIVStore) Upsert(ctx context.Context, sample market.VolSample) error {
	if sample.Ticker == "" || sample.Date == "" {
		return errors.New("ticker/date 不能为空")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO iv_history (ticker, date, atm_iv, hv20, hv60, close_price)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.Ticker, sample.Date,
		nullFloat(sample.ATMIV), nullFloat(sample.HV20), nullFloat(sample.HV60),
		sample.ClosePrice,
	)
	return err
}

func (s *SQLiteIVStore) RecentIVs(ctx context.Context, ticker string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 252
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT atm_iv FROM iv_history
		 WHERE ticker = ? AND atm_iv IS NOT NULL
		 ORDER BY date DESC LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteIVStore) Latest(ctx context.Context, ticker string) (*market.VolSample, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ticker, date, atm_iv, hv20, hv60, close_price FROM iv_history
		 WHERE ticker = ? ORDER BY date DESC LIMIT 1`, ticker)
	sample, err := scanSample(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *SQLiteIVStore) History(ctx context.Context, ticker string, limit int) ([]market.VolSample, error) {
	if limit <= 0 {
		limit = 252
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, date, atm_iv, hv20, hv60, close_price FROM (
		     SELECT * FROM iv_history WHERE ticker = ? ORDER BY date DESC LIMIT ?
		 ) ORDER BY date ASC`, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.VolSample
	for rows.Next() {
		sample, err := scanSample(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sample)
	}
	return out, rows.Err()
}

func (s *SQLiteIVStore) Close() error { return s.db.Close() }

func scanSample(scan func(dest ...any) error) (*market.VolSample, error) {
	var sample market.VolSample
	var atmIV, hv20, hv60, closePrice sql.NullFloat64
	if err := scan(&sample.Ticker, &sample.Date, &atmIV, &hv20, &hv60, &closePrice); err != nil {
		return nil, err
	}
	sample.ATMIV = ptrOf(atmIV)
	sample.HV20 = ptrOf(hv20)
	sample.HV60 = ptrOf(hv60)
	sample.ClosePrice = closePrice.Float64
	return &sample, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func ptrOf(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
