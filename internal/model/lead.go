package model

import "time"

// LeadStatus はリードの営業ステータスを表す。
type LeadStatus string

const (
	LeadStatusNew          LeadStatus = "new"
	LeadStatusDuplicate    LeadStatus = "duplicate"
	LeadStatusContacted    LeadStatus = "contacted"
	LeadStatusQualified    LeadStatus = "qualified"
	LeadStatusDisqualified LeadStatus = "disqualified"
	LeadStatusCallback     LeadStatus = "callback"
	LeadStatusInventory    LeadStatus = "inventory"
	LeadStatusConverted    LeadStatus = "converted"
)

// LeadStatuses は有効なステータスの一覧。集計の列順にも使用する。
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusDuplicate,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusDisqualified,
	LeadStatusCallback,
	LeadStatusInventory,
	LeadStatusConverted,
}

// Valid はステータスが定義済みの値かどうかを返す。
func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Lead は不動産の売却見込み客（リード）を表す。
// UserIDは登録したユーザー。PhoneDigitsは重複判定用に数字のみへ正規化した電話番号。
type Lead struct {
	ID              string
	UserID          string
	CampaignID      *string
	Name            string
	PhoneNumber     string
	PhoneDigits     string
	Listed          string
	AskingPrice     *float64 // AP
	MarketValue     *float64 // MV
	RepairsNeeded   string
	Bedrooms        string
	Bathrooms       string
	ConditionRating *int
	Occupancy       string
	Reason          string
	Closing         string
	Address         string
	AdditionalInfo  string
	Status          LeadStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LeadWithOwner は管理者向け一覧で使用する、登録者メールアドレス付きのリード。
type LeadWithOwner struct {
	Lead
	OwnerEmail   string
	CampaignName string
}

// LeadFilter はリード一覧の絞り込み条件。
type LeadFilter struct {
	UserID string // 空の場合は全ユーザー
	Status LeadStatus
	Search string
	Offset int
	Limit  int
}

// LeadStats はステータス別のリード件数。
type LeadStats struct {
	Total    int
	Today    int
	ByStatus map[LeadStatus]int
}

// LeadNote はリードに付与されるメモ。
type LeadNote struct {
	ID          string
	LeadID      string
	UserID      string
	AuthorEmail string
	Text        string
	Type        string // general, call, admin_note 等
	IsAdminNote bool
	CreatedAt   time.Time
}

// Campaign はリードの獲得経路となるキャンペーン。
type Campaign struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AdminStats は管理ダッシュボードの集計値。
type AdminStats struct {
	TotalUsers  int
	TotalAdmins int
	Leads       LeadStats
}

// LeaderboardEntry はリード登録件数ランキングの1行。
type LeaderboardEntry struct {
	UserID    string
	Email     string
	LeadCount int
}
