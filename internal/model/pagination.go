package model

// Pagination は一覧取得のページ情報。
type Pagination struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// NewPagination はページ番号と件数を正規化してPaginationを生成する。
// pageは1以上、limitは1以上maxLimit以下に丸める。0以下のlimitにはdefaultLimitを使用する。
func NewPagination(page, limit, defaultLimit, maxLimit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Page: page, Limit: limit}
}

// Offset はページ先頭のオフセットを返す。
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// WithTotal は総件数と総ページ数を設定したコピーを返す。
func (p Pagination) WithTotal(total int) Pagination {
	p.Total = total
	if p.Limit > 0 {
		p.TotalPages = (total + p.Limit - 1) / p.Limit
	}
	return p
}
