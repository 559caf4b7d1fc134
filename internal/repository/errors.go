package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しないことを示す。
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate は一意制約違反を示す。
	ErrDuplicate = errors.New("repository: duplicate record")
)

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// IsTransient はerrがストアへの一時的な到達失敗（タイムアウト、接続断、
// サーバー側の資源不足など）かどうかを返す。
// trueの場合、呼び出し元は「権限なし」や「未登録」と区別して扱う必要がある。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57", // operator intervention
			"58": // system error
			return true
		}
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	return false
}

// isUniqueViolation はerrが一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isForeignKeyViolation はerrが外部キー制約違反かどうかを返す。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// isInvalidUUID はUUID型カラムに不正な文字列を渡した場合のエラーかどうかを返す。
// 存在しないIDと同じく「見つからない」として扱う。
func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02" && strings.Contains(pqErr.Message, "uuid")
}
