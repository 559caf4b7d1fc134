package lead

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/leadman/internal/model"
)

// 入力項目の最大文字数
const (
	maxNameLength           = 255
	maxPhoneLength          = 255
	maxRepairsLength        = 1000
	maxReasonLength         = 500
	maxClosingLength        = 100
	maxAddressLength        = 500
	maxAdditionalInfoLength = 1000
	maxNoteLength           = 2000
)

var listedValues = []string{"listed_with_realtor", "listed_by_owner", "not_listed"}

var occupancyValues = []string{"owner_occupied", "tenants", "vacant"}

// Input はリードの作成・更新の入力値。
// 空文字列は未入力として扱う。
type Input struct {
	Name            string
	PhoneNumber     string
	CampaignID      string
	Listed          string
	AskingPrice     *float64
	MarketValue     *float64
	RepairsNeeded   string
	Bedrooms        string
	Bathrooms       string
	ConditionRating *int
	Occupancy       string
	Reason          string
	Closing         string
	Address         string
	AdditionalInfo  string

	// Status は管理者による更新時のみ反映する。
	Status string
}

// PhoneDigits は電話番号から数字以外を取り除いた重複判定用の値を返す。
func PhoneDigits(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trim は自由記述以外の項目の前後空白を取り除く。
func (in Input) trim() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.CampaignID = strings.TrimSpace(in.CampaignID)
	in.Listed = strings.TrimSpace(in.Listed)
	in.Bedrooms = strings.TrimSpace(in.Bedrooms)
	in.Bathrooms = strings.TrimSpace(in.Bathrooms)
	in.Occupancy = strings.TrimSpace(in.Occupancy)
	in.Status = strings.TrimSpace(in.Status)
	return in
}

// Validate は入力値を検証する。requirePhoneがtrueの場合は電話番号を必須とする。
// 最初に見つかった違反をVALIDATION_FAILEDとして返す。
func (in Input) Validate(requirePhone bool) error {
	in = in.trim()

	switch {
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		return model.NewValidationError("名前は255文字以内で入力してください")
	case requirePhone && in.PhoneNumber == "":
		return model.NewValidationError("電話番号は必須です")
	case utf8.RuneCountInString(in.PhoneNumber) > maxPhoneLength:
		return model.NewValidationError("電話番号は255文字以内で入力してください")
	case in.PhoneNumber != "" && PhoneDigits(in.PhoneNumber) == "":
		return model.NewValidationError("電話番号に数字が含まれていません")
	}

	if in.CampaignID != "" {
		if _, err := uuid.Parse(in.CampaignID); err != nil {
			return model.NewValidationError("キャンペーンIDの形式が正しくありません")
		}
	}
	if in.Listed != "" && !contains(listedValues, in.Listed) {
		return model.NewValidationError("listedは listed_with_realtor, listed_by_owner, not_listed のいずれかを指定してください")
	}
	if in.AskingPrice != nil && *in.AskingPrice < 0 {
		return model.NewValidationError("APは0以上の数値で入力してください")
	}
	if in.MarketValue != nil && *in.MarketValue < 0 {
		return model.NewValidationError("MVは0以上の数値で入力してください")
	}
	if utf8.RuneCountInString(in.RepairsNeeded) > maxRepairsLength {
		return model.NewValidationError("修繕内容は1000文字以内で入力してください")
	}
	if !validBedrooms(in.Bedrooms) {
		return model.NewValidationError("寝室数は1〜10または6+を指定してください")
	}
	if !validBathrooms(in.Bathrooms) {
		return model.NewValidationError("浴室数は0.5〜10または4+を指定してください")
	}
	if in.ConditionRating != nil && (*in.ConditionRating < 1 || *in.ConditionRating > 10) {
		return model.NewValidationError("状態評価は1〜10で指定してください")
	}
	if in.Occupancy != "" && !contains(occupancyValues, in.Occupancy) {
		return model.NewValidationError("居住状況は owner_occupied, tenants, vacant のいずれかを指定してください")
	}
	if utf8.RuneCountInString(in.Reason) > maxReasonLength {
		return model.NewValidationError("売却理由は500文字以内で入力してください")
	}
	if utf8.RuneCountInString(in.Closing) > maxClosingLength {
		return model.NewValidationError("クロージング時期は100文字以内で入力してください")
	}
	if utf8.RuneCountInString(in.Address) > maxAddressLength {
		return model.NewValidationError("住所は500文字以内で入力してください")
	}
	if utf8.RuneCountInString(in.AdditionalInfo) > maxAdditionalInfoLength {
		return model.NewValidationError("補足情報は1000文字以内で入力してください")
	}
	if in.Status != "" && !model.LeadStatus(in.Status).Valid() {
		return model.NewValidationError("ステータスが正しくありません")
	}
	return nil
}

func validBedrooms(v string) bool {
	if v == "" || v == "6+" {
		return true
	}
	n, err := strconv.Atoi(v)
	return err == nil && n >= 1 && n <= 10
}

func validBathrooms(v string) bool {
	if v == "" || v == "4+" {
		return true
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f >= 0.5 && f <= 10
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
