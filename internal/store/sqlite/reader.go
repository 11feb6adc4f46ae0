package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"binarysignal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader serves candle windows from the candles table.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// FetchCandles returns up to count of the most recent candles for pair,
// ordered by time ascending.
func (r *Reader) FetchCandles(ctx context.Context, pair string, count int) ([]model.Candle, error) {
	if count <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT time, open, high, low, close, volume
		FROM candles
		WHERE pair = ?
		ORDER BY time DESC
		LIMIT ?
	`, pair, count)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
