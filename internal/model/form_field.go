package model

import "time"

// FormFieldType はリード登録フォームの入力項目の種類。
type FormFieldType string

// フォーム項目の種類
const (
	FieldTypeText     FormFieldType = "text"
	FieldTypeTextarea FormFieldType = "textarea"
	FieldTypeNumber   FormFieldType = "number"
	FieldTypeEmail    FormFieldType = "email"
	FieldTypeTel      FormFieldType = "tel"
	FieldTypeDate     FormFieldType = "date"
	FieldTypeSelect   FormFieldType = "select"
	FieldTypeCheckbox FormFieldType = "checkbox"
)

// AllFormFieldTypes は定義済みの項目種類を返す。
func AllFormFieldTypes() []FormFieldType {
	return []FormFieldType{
		FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeEmail,
		FieldTypeTel, FieldTypeDate, FieldTypeSelect, FieldTypeCheckbox,
	}
}

// Valid は定義済みの種類かどうかを返す。
func (t FormFieldType) Valid() bool {
	for _, v := range AllFormFieldTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// FormField は管理者が定義するリード登録フォームの入力項目。
// Nameは項目の識別子で、作成後は変更できない。
type FormField struct {
	Name        string
	Type        FormFieldType
	Label       string
	Placeholder string
	Required    bool
	Options     []string // selectの場合のみ
	Position    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
