package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/leadman/internal/model"
)

// leadSelectColumns はリード取得時の共通SELECT句。leadScannerと列順を合わせること。
const leadSelectColumns = `
	SELECT l.id, l.user_id, l.campaign_id, l.name, l.phone_number, l.phone_digits,
	       l.listed, l.asking_price, l.market_value, l.repairs_needed,
	       l.bedrooms, l.bathrooms, l.condition_rating, l.occupancy,
	       l.reason, l.closing, l.address, l.additional_info, l.status,
	       l.created_at, l.updated_at,
	       u.email, COALESCE(c.name, '')
	FROM leads l
	JOIN users u ON u.id = l.user_id
	LEFT JOIN campaigns c ON c.id = l.campaign_id`

// PostgresLeadRepo はPostgreSQLを使用したリードリポジトリ。
type PostgresLeadRepo struct {
	db *sql.DB
}

// NewPostgresLeadRepo はPostgresLeadRepoを生成する。
func NewPostgresLeadRepo(db *sql.DB) *PostgresLeadRepo {
	return &PostgresLeadRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(s rowScanner) (*model.LeadWithOwner, error) {
	var lw model.LeadWithOwner
	var campaignID sql.NullString
	var askingPrice, marketValue sql.NullFloat64
	var conditionRating sql.NullInt64
	var status string

	if err := s.Scan(
		&lw.ID, &lw.UserID, &campaignID, &lw.Name, &lw.PhoneNumber, &lw.PhoneDigits,
		&lw.Listed, &askingPrice, &marketValue, &lw.RepairsNeeded,
		&lw.Bedrooms, &lw.Bathrooms, &conditionRating, &lw.Occupancy,
		&lw.Reason, &lw.Closing, &lw.Address, &lw.AdditionalInfo, &status,
		&lw.CreatedAt, &lw.UpdatedAt,
		&lw.OwnerEmail, &lw.CampaignName,
	); err != nil {
		return nil, err
	}

	lw.Status = model.LeadStatus(status)
	if campaignID.Valid {
		lw.CampaignID = &campaignID.String
	}
	if askingPrice.Valid {
		lw.AskingPrice = &askingPrice.Float64
	}
	if marketValue.Valid {
		lw.MarketValue = &marketValue.Float64
	}
	if conditionRating.Valid {
		v := int(conditionRating.Int64)
		lw.ConditionRating = &v
	}
	return &lw, nil
}

func (r *PostgresLeadRepo) queryLeads(ctx context.Context, query string, args ...interface{}) ([]model.LeadWithOwner, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("リード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var leads []model.LeadWithOwner
	for rows.Next() {
		lw, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("リード行の読み取りに失敗しました: %w", err)
		}
		leads = append(leads, *lw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リード一覧の走査に失敗しました: %w", err)
	}
	return leads, nil
}

// FindByID は指定IDのリードを登録者情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresLeadRepo) FindByID(ctx context.Context, id string) (*model.LeadWithOwner, error) {
	lw, err := scanLead(r.db.QueryRowContext(ctx, leadSelectColumns+` WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	return lw, nil
}

// buildLeadWhere はフィルタ条件からWHERE句と引数を組み立てる。
func buildLeadWhere(filter model.LeadFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	argIndex := 1

	if filter.UserID != "" {
		conds = append(conds, fmt.Sprintf("l.user_id = $%d", argIndex))
		args = append(args, filter.UserID)
		argIndex++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("l.status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}
	if filter.Search != "" {
		conds = append(conds, fmt.Sprintf(
			"(l.name ILIKE $%[1]d OR l.phone_number ILIKE $%[1]d OR l.address ILIKE $%[1]d)", argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List は条件に一致するリードをcreated_at降順で返し、総件数も返す。
func (r *PostgresLeadRepo) List(ctx context.Context, filter model.LeadFilter) ([]model.LeadWithOwner, int, error) {
	where, args := buildLeadWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM leads l`+where, args...).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("リード件数の取得に失敗しました: %w", err)
	}

	query := leadSelectColumns + where +
		fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	leads, err := r.queryLeads(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// ListForExport はユーザーの全リードをcreated_at降順で返す。
func (r *PostgresLeadRepo) ListForExport(ctx context.Context, userID string) ([]model.LeadWithOwner, error) {
	return r.queryLeads(ctx, leadSelectColumns+` WHERE l.user_id = $1 ORDER BY l.created_at DESC`, userID)
}

// FindByPhoneDigits は正規化済み電話番号が一致するリードを返す。
// userIDが空の場合は全ユーザーを対象とする。
func (r *PostgresLeadRepo) FindByPhoneDigits(ctx context.Context, digits, userID string) ([]model.LeadWithOwner, error) {
	if userID == "" {
		return r.queryLeads(ctx, leadSelectColumns+` WHERE l.phone_digits = $1 ORDER BY l.created_at DESC`, digits)
	}
	return r.queryLeads(ctx,
		leadSelectColumns+` WHERE l.phone_digits = $1 AND l.user_id = $2 ORDER BY l.created_at DESC`,
		digits, userID,
	)
}

// Create はリードを作成する。
func (r *PostgresLeadRepo) Create(ctx context.Context, lead *model.Lead) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (
			id, user_id, campaign_id, name, phone_number, phone_digits,
			listed, asking_price, market_value, repairs_needed,
			bedrooms, bathrooms, condition_rating, occupancy,
			reason, closing, address, additional_info, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		lead.ID, lead.UserID, lead.CampaignID, lead.Name, lead.PhoneNumber, lead.PhoneDigits,
		lead.Listed, lead.AskingPrice, lead.MarketValue, lead.RepairsNeeded,
		lead.Bedrooms, lead.Bathrooms, lead.ConditionRating, lead.Occupancy,
		lead.Reason, lead.Closing, lead.Address, lead.AdditionalInfo, string(lead.Status),
		lead.CreatedAt, lead.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("リードの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はリードの入力項目とステータスを更新する。
func (r *PostgresLeadRepo) Update(ctx context.Context, lead *model.Lead) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET
			campaign_id = $2, name = $3, phone_number = $4, phone_digits = $5,
			listed = $6, asking_price = $7, market_value = $8, repairs_needed = $9,
			bedrooms = $10, bathrooms = $11, condition_rating = $12, occupancy = $13,
			reason = $14, closing = $15, address = $16, additional_info = $17,
			status = $18, updated_at = $19
		 WHERE id = $1`,
		lead.ID, lead.CampaignID, lead.Name, lead.PhoneNumber, lead.PhoneDigits,
		lead.Listed, lead.AskingPrice, lead.MarketValue, lead.RepairsNeeded,
		lead.Bedrooms, lead.Bathrooms, lead.ConditionRating, lead.Occupancy,
		lead.Reason, lead.Closing, lead.Address, lead.AdditionalInfo,
		string(lead.Status), lead.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("リードの更新に失敗しました: %w", err)
	}
	return requireAffected(result)
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresLeadRepo) UpdateStatus(ctx context.Context, id string, status model.LeadStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		if isInvalidUUID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("リードステータスの更新に失敗しました: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID は指定IDのリードを削除する。メモはCASCADE削除される。
func (r *PostgresLeadRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return ErrNotFound
		}
		return fmt.Errorf("リードの削除に失敗しました: %w", err)
	}
	return requireAffected(result)
}

// Stats はステータス別件数とsince以降の登録件数を返す。
func (r *PostgresLeadRepo) Stats(ctx context.Context, userID string, since time.Time) (*model.LeadStats, error) {
	query := `SELECT status, count(*), count(*) FILTER (WHERE created_at >= $1) FROM leads`
	args := []interface{}{since}
	if userID != "" {
		query += ` WHERE user_id = $2`
		args = append(args, userID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("リード集計に失敗しました: %w", err)
	}
	defer rows.Close()

	stats := &model.LeadStats{ByStatus: make(map[model.LeadStatus]int, len(model.LeadStatuses))}
	for _, s := range model.LeadStatuses {
		stats.ByStatus[s] = 0
	}
	for rows.Next() {
		var status string
		var count, today int
		if err := rows.Scan(&status, &count, &today); err != nil {
			return nil, fmt.Errorf("リード集計行の読み取りに失敗しました: %w", err)
		}
		stats.ByStatus[model.LeadStatus(status)] = count
		stats.Total += count
		stats.Today += today
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リード集計の走査に失敗しました: %w", err)
	}
	return stats, nil
}

// Leaderboard は[from, to)に登録されたリード件数の多い順にユーザーを返す。
// toがゼロ値の場合は上限なし。同数の場合はメールアドレス順。
func (r *PostgresLeadRepo) Leaderboard(ctx context.Context, from, to time.Time, limit int) ([]model.LeaderboardEntry, error) {
	query := `SELECT u.id, u.email, count(l.id) AS lead_count
		FROM leads l JOIN users u ON u.id = l.user_id
		WHERE l.created_at >= $1`
	args := []interface{}{from}
	if !to.IsZero() {
		query += ` AND l.created_at < $2`
		args = append(args, to)
	}
	query += fmt.Sprintf(` GROUP BY u.id, u.email ORDER BY lead_count DESC, u.email LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ランキングの集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Email, &e.LeadCount); err != nil {
			return nil, fmt.Errorf("ランキング行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ランキングの走査に失敗しました: %w", err)
	}
	return entries, nil
}

// requireAffected は更新件数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ LeadRepository = (*PostgresLeadRepo)(nil)
