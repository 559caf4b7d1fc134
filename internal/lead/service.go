// Package lead はリード（売却見込み客）管理のドメインロジックを提供する。
package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"github.com/hitoshi/leadman/internal/model"
	"github.com/hitoshi/leadman/internal/repository"
	"github.com/hitoshi/leadman/internal/security"
)

// 一覧取得の件数
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// メモ種別
const (
	NoteTypeGeneral = "general"
	NoteTypeAdmin   = "admin_note"
)

// AdminChecker は管理者判定のインターフェース。
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// ListParams はリード一覧の取得条件。
type ListParams struct {
	Page   int
	Limit  int
	Status string
	Search string
}

// Page はリード一覧の1ページ分。
type Page struct {
	Leads      []model.LeadWithOwner
	Pagination model.Pagination
}

// CreateResult はリード作成の結果。
// DuplicateCountは作成前に存在した同一電話番号のリード数（全ユーザー）。
type CreateResult struct {
	Lead           *model.LeadWithOwner
	IsDuplicate    bool
	DuplicateCount int
}

// DuplicateCheck は電話番号の重複確認結果。
type DuplicateCheck struct {
	IsDuplicate bool
	Duplicates  []model.LeadWithOwner
}

// StatusUpdate は管理者によるステータス更新の結果。
type StatusUpdate struct {
	Lead *model.LeadWithOwner
	Note *model.LeadNote
}

// Service はリード管理のサービス層。
// 所有者・管理者による閲覧範囲の制御と入力の正規化を行う。
type Service struct {
	leads     repository.LeadRepository
	notes     repository.NoteRepository
	admins    AdminChecker
	sanitizer security.TextSanitizerService
	clock     abtime.AbstractTime
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	leads repository.LeadRepository,
	notes repository.NoteRepository,
	admins AdminChecker,
	sanitizer security.TextSanitizerService,
	clock abtime.AbstractTime,
) *Service {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Service{
		leads:     leads,
		notes:     notes,
		admins:    admins,
		sanitizer: sanitizer,
		clock:     clock,
	}
}

// List はユーザー自身のリードを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, params ListParams) (*Page, error) {
	return s.list(ctx, userID, params)
}

// ListAll は全ユーザーのリードを登録者メールアドレス付きで返す。管理者向け。
func (s *Service) ListAll(ctx context.Context, params ListParams) (*Page, error) {
	return s.list(ctx, "", params)
}

func (s *Service) list(ctx context.Context, userID string, params ListParams) (*Page, error) {
	status := model.LeadStatus(strings.TrimSpace(params.Status))
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError("ステータスが正しくありません")
	}

	p := model.NewPagination(params.Page, params.Limit, DefaultPageLimit, MaxPageLimit)
	leads, total, err := s.leads.List(ctx, model.LeadFilter{
		UserID: userID,
		Status: status,
		Search: strings.TrimSpace(params.Search),
		Offset: p.Offset(),
		Limit:  p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("リード一覧の取得に失敗しました: %w", err)
	}
	if leads == nil {
		leads = []model.LeadWithOwner{}
	}

	return &Page{Leads: leads, Pagination: p.WithTotal(total)}, nil
}

// Create はリードを作成する。
// 同じ電話番号のリードが既に存在する場合（全ユーザー対象）はステータスをduplicateにする。
func (s *Service) Create(ctx context.Context, ident model.RequestIdentity, in Input) (*CreateResult, error) {
	// 1. 入力検証
	if err := in.Validate(true); err != nil {
		return nil, err
	}

	// 2. 重複判定
	lead := s.buildLead(in.trim())
	existing, err := s.leads.FindByPhoneDigits(ctx, lead.PhoneDigits, "")
	if err != nil {
		return nil, fmt.Errorf("重複リードの確認に失敗しました: %w", err)
	}

	lead.Status = model.LeadStatusNew
	if len(existing) > 0 {
		lead.Status = model.LeadStatusDuplicate
	}

	// 3. 作成
	now := s.clock.Now().UTC()
	lead.ID = uuid.New().String()
	lead.UserID = ident.ID
	lead.CreatedAt = now
	lead.UpdatedAt = now

	if err := s.leads.Create(ctx, lead); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewCampaignNotFoundError(in.CampaignID)
		}
		return nil, fmt.Errorf("リードの作成に失敗しました: %w", err)
	}

	slog.Info("lead created",
		slog.String("user_id", ident.ID),
		slog.String("lead_id", lead.ID),
		slog.Bool("duplicate", len(existing) > 0),
	)

	created := &model.LeadWithOwner{Lead: *lead, OwnerEmail: ident.Email}
	return &CreateResult{
		Lead:           created,
		IsDuplicate:    len(existing) > 0,
		DuplicateCount: len(existing),
	}, nil
}

// CheckDuplicate は電話番号の重複を確認する。
// 管理者は全ユーザーのリードを、それ以外は自分のリードのみを対象とする。
func (s *Service) CheckDuplicate(ctx context.Context, ident model.RequestIdentity, phone string) (*DuplicateCheck, error) {
	digits := PhoneDigits(phone)
	if digits == "" {
		return nil, model.NewValidationError("電話番号は必須です")
	}

	isAdmin, err := s.isAdmin(ctx, ident)
	if err != nil {
		return nil, err
	}

	scope := ident.ID
	if isAdmin {
		scope = ""
	}

	dups, err := s.leads.FindByPhoneDigits(ctx, digits, scope)
	if err != nil {
		return nil, fmt.Errorf("重複リードの確認に失敗しました: %w", err)
	}
	if dups == nil {
		dups = []model.LeadWithOwner{}
	}

	return &DuplicateCheck{IsDuplicate: len(dups) > 0, Duplicates: dups}, nil
}

// Get はリードを返す。所有者または管理者のみ参照できる。
func (s *Service) Get(ctx context.Context, ident model.RequestIdentity, leadID string) (*model.LeadWithOwner, error) {
	lead, _, err := s.findVisible(ctx, ident, leadID)
	return lead, err
}

// Update はリードを更新する。所有者または管理者のみ更新でき、ステータスは管理者のみ変更できる。
// 電話番号が未入力の場合は既存の値を維持する。
func (s *Service) Update(ctx context.Context, ident model.RequestIdentity, leadID string, in Input) (*model.LeadWithOwner, error) {
	if err := in.Validate(false); err != nil {
		return nil, err
	}

	current, isAdmin, err := s.findVisible(ctx, ident, leadID)
	if err != nil {
		return nil, err
	}

	in = in.trim()
	updated := s.buildLead(in)
	updated.ID = current.ID
	updated.UserID = current.UserID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.clock.Now().UTC()
	updated.Status = current.Status
	if in.PhoneNumber == "" {
		updated.PhoneNumber = current.PhoneNumber
		updated.PhoneDigits = current.PhoneDigits
	}
	if isAdmin && in.Status != "" {
		updated.Status = model.LeadStatus(in.Status)
	}

	if err := s.leads.Update(ctx, updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if in.CampaignID != "" {
				return nil, model.NewCampaignNotFoundError(in.CampaignID)
			}
			return nil, model.NewLeadNotFoundError(leadID)
		}
		return nil, fmt.Errorf("リードの更新に失敗しました: %w", err)
	}

	return s.reload(ctx, leadID)
}

// Delete はリードを削除する。所有者のみ削除できる。
func (s *Service) Delete(ctx context.Context, ident model.RequestIdentity, leadID string) error {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	if lead == nil || lead.UserID != ident.ID {
		return model.NewLeadNotFoundError(leadID)
	}

	if err := s.leads.DeleteByID(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewLeadNotFoundError(leadID)
		}
		return fmt.Errorf("リードの削除に失敗しました: %w", err)
	}

	slog.Info("lead deleted",
		slog.String("user_id", ident.ID),
		slog.String("lead_id", leadID),
	)
	return nil
}

// ListNotes はリードのメモを新しい順に返す。所有者または管理者のみ参照できる。
func (s *Service) ListNotes(ctx context.Context, ident model.RequestIdentity, leadID string) ([]model.LeadNote, error) {
	if _, _, err := s.findVisible(ctx, ident, leadID); err != nil {
		return nil, err
	}

	notes, err := s.notes.ListByLeadID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("メモ一覧の取得に失敗しました: %w", err)
	}
	if notes == nil {
		notes = []model.LeadNote{}
	}
	return notes, nil
}

// AddNote はリードにメモを追加する。所有者または管理者のみ追加できる。
// admin_note種別は管理者のみ指定できる。
func (s *Service) AddNote(ctx context.Context, ident model.RequestIdentity, leadID, text, noteType string) (*model.LeadNote, error) {
	text = s.sanitizer.Sanitize(text)
	if text == "" {
		return nil, model.NewValidationError("メモは必須です")
	}
	if utf8.RuneCountInString(text) > maxNoteLength {
		return nil, model.NewValidationError("メモは2000文字以内で入力してください")
	}
	noteType = strings.TrimSpace(noteType)
	if noteType == "" {
		noteType = NoteTypeGeneral
	}
	if utf8.RuneCountInString(noteType) > 50 {
		return nil, model.NewValidationError("メモ種別が長すぎます")
	}

	_, isAdmin, err := s.findVisible(ctx, ident, leadID)
	if err != nil {
		return nil, err
	}
	if noteType == NoteTypeAdmin && !isAdmin {
		// 所有者の場合は管理者判定を省略しているため、ここで解決する
		if isAdmin, err = s.isAdmin(ctx, ident); err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, model.NewForbiddenError()
		}
	}

	return s.createNote(ctx, ident, leadID, text, noteType, noteType == NoteTypeAdmin)
}

// AdminUpdateStatus は管理者がリードのステータスを更新し、任意で管理者メモを追加する。
// 呼び出し元で管理者権限を確認済みであること。
func (s *Service) AdminUpdateStatus(ctx context.Context, ident model.RequestIdentity, leadID, status, noteText string) (*StatusUpdate, error) {
	st := model.LeadStatus(strings.TrimSpace(status))
	if !st.Valid() {
		return nil, model.NewValidationError("ステータスが正しくありません")
	}
	noteText = s.sanitizer.Sanitize(noteText)
	if utf8.RuneCountInString(noteText) > maxNoteLength {
		return nil, model.NewValidationError("メモは2000文字以内で入力してください")
	}

	if err := s.leads.UpdateStatus(ctx, leadID, st); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewLeadNotFoundError(leadID)
		}
		return nil, fmt.Errorf("リードステータスの更新に失敗しました: %w", err)
	}

	slog.Info("lead status updated by admin",
		slog.String("admin_id", ident.ID),
		slog.String("lead_id", leadID),
		slog.String("status", string(st)),
	)

	result := &StatusUpdate{}
	if noteText != "" {
		note, err := s.createNote(ctx, ident, leadID, noteText, NoteTypeAdmin, true)
		if err != nil {
			return nil, err
		}
		result.Note = note
	}

	lead, err := s.reload(ctx, leadID)
	if err != nil {
		return nil, err
	}
	result.Lead = lead
	return result, nil
}

// Stats はステータス別件数と当日（UTC）の登録件数を返す。userIDが空の場合は全ユーザーを集計する。
func (s *Service) Stats(ctx context.Context, userID string) (*model.LeadStats, error) {
	stats, err := s.leads.Stats(ctx, userID, StartOfDay(s.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("リード集計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// StartOfDay はtのUTCでの日付の0時を返す。
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// findVisible はリードを取得し、所有者または管理者であることを確認する。
// 参照できない場合は存在を明かさないようLEAD_NOT_FOUNDを返す。
func (s *Service) findVisible(ctx context.Context, ident model.RequestIdentity, leadID string) (*model.LeadWithOwner, bool, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, false, fmt.Errorf("リードの取得に失敗しました: %w", err)
	}
	if lead == nil {
		return nil, false, model.NewLeadNotFoundError(leadID)
	}

	// 所有者の場合は管理者判定を省略する
	if lead.UserID == ident.ID && !ident.AdminResolved {
		return lead, false, nil
	}

	isAdmin, err := s.isAdmin(ctx, ident)
	if err != nil {
		return nil, false, err
	}
	if lead.UserID != ident.ID && !isAdmin {
		return nil, false, model.NewLeadNotFoundError(leadID)
	}
	return lead, isAdmin, nil
}

// isAdmin は識別情報の管理者フラグを返す。未解決の場合のみロールストアに問い合わせる。
func (s *Service) isAdmin(ctx context.Context, ident model.RequestIdentity) (bool, error) {
	if ident.AdminResolved {
		return ident.IsAdmin, nil
	}
	isAdmin, err := s.admins.IsAdmin(ctx, ident.ID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return false, apiErr
		}
		return false, model.NewStoreUnavailableError()
	}
	return isAdmin, nil
}

func (s *Service) createNote(ctx context.Context, ident model.RequestIdentity, leadID, text, noteType string, isAdminNote bool) (*model.LeadNote, error) {
	note := &model.LeadNote{
		ID:          uuid.New().String(),
		LeadID:      leadID,
		UserID:      ident.ID,
		AuthorEmail: ident.Email,
		Text:        text,
		Type:        noteType,
		IsAdminNote: isAdminNote,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.notes.Create(ctx, note); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewLeadNotFoundError(leadID)
		}
		return nil, fmt.Errorf("メモの作成に失敗しました: %w", err)
	}
	return note, nil
}

func (s *Service) reload(ctx context.Context, leadID string) (*model.LeadWithOwner, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("リードの再取得に失敗しました: %w", err)
	}
	if lead == nil {
		return nil, model.NewLeadNotFoundError(leadID)
	}
	return lead, nil
}

// buildLead は検証済みの入力からリードを組み立てる。自由記述欄はHTMLを除去する。
func (s *Service) buildLead(in Input) *model.Lead {
	lead := &model.Lead{
		Name:            s.sanitizer.Sanitize(in.Name),
		PhoneNumber:     in.PhoneNumber,
		PhoneDigits:     PhoneDigits(in.PhoneNumber),
		Listed:          in.Listed,
		AskingPrice:     in.AskingPrice,
		MarketValue:     in.MarketValue,
		RepairsNeeded:   s.sanitizer.Sanitize(in.RepairsNeeded),
		Bedrooms:        in.Bedrooms,
		Bathrooms:       in.Bathrooms,
		ConditionRating: in.ConditionRating,
		Occupancy:       in.Occupancy,
		Reason:          s.sanitizer.Sanitize(in.Reason),
		Closing:         s.sanitizer.Sanitize(in.Closing),
		Address:         s.sanitizer.Sanitize(in.Address),
		AdditionalInfo:  s.sanitizer.Sanitize(in.AdditionalInfo),
	}
	if in.CampaignID != "" {
		id := strings.ToLower(in.CampaignID)
		lead.CampaignID = &id
	}
	return lead
}
