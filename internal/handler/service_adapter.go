package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/leadman/internal/database"
)

// DBHealthChecker は *sql.DB を HealthChecker に適合させるアダプタ。
type DBHealthChecker struct {
	db      *sql.DB
	timeout time.Duration
}

// NewDBHealthChecker はDBHealthCheckerを生成する。timeoutが0以下の場合は2秒を使用する。
func NewDBHealthChecker(db *sql.DB, timeout time.Duration) *DBHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DBHealthChecker{db: db, timeout: timeout}
}

// Ping はtimeout以内にデータベースへ到達できるかを確認する。
func (c *DBHealthChecker) Ping(ctx context.Context) error {
	return database.Ping(ctx, c.db, c.timeout)
}

// compile-time interface check
var _ HealthChecker = (*DBHealthChecker)(nil)
