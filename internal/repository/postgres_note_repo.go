package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/leadman/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したリードメモリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// Create はメモを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.LeadNote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lead_notes (id, lead_id, user_id, note, note_type, is_admin_note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		note.ID, note.LeadID, note.UserID, note.Text, note.Type, note.IsAdminNote, note.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByLeadID はリードのメモを投稿者メールアドレス付きで新しい順に返す。
func (r *PostgresNoteRepo) ListByLeadID(ctx context.Context, leadID string) ([]model.LeadNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.lead_id, n.user_id, u.email, n.note, n.note_type, n.is_admin_note, n.created_at
		 FROM lead_notes n
		 JOIN users u ON u.id = n.user_id
		 WHERE n.lead_id = $1
		 ORDER BY n.created_at DESC`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var notes []model.LeadNote
	for rows.Next() {
		var n model.LeadNote
		if err := rows.Scan(&n.ID, &n.LeadID, &n.UserID, &n.AuthorEmail, &n.Text, &n.Type, &n.IsAdminNote, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("メモ行の読み取りに失敗しました: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メモ一覧の走査に失敗しました: %w", err)
	}
	return notes, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
