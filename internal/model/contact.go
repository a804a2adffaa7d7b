package model

import "time"

// ServiceType は問い合わせ対象のサービス種別を表す。
type ServiceType string

const (
	ServiceTypeResidential ServiceType = "residential"
	ServiceTypeCommercial  ServiceType = "commercial"
	ServiceTypeFoundation  ServiceType = "foundation"
	ServiceTypeEmergency   ServiceType = "emergency"
)

// ServiceTypes は有効なサービス種別の一覧。
var ServiceTypes = []ServiceType{
	ServiceTypeResidential,
	ServiceTypeCommercial,
	ServiceTypeFoundation,
	ServiceTypeEmergency,
}

// Valid はサービス種別が定義済みの値かどうかを返す。
func (s ServiceType) Valid() bool {
	for _, v := range ServiceTypes {
		if s == v {
			return true
		}
	}
	return false
}

// ContactStatus は問い合わせの対応状況を表す。
// 状態遷移に制約はなく、定義済みの値であればいつでも設定できる。
type ContactStatus string

const (
	ContactStatusNew       ContactStatus = "new"
	ContactStatusPending   ContactStatus = "pending"
	ContactStatusContacted ContactStatus = "contacted"
	ContactStatusQuoted    ContactStatus = "quoted"
	ContactStatusScheduled ContactStatus = "scheduled"
	ContactStatusCompleted ContactStatus = "completed"
	ContactStatusCancelled ContactStatus = "cancelled"
)

// ContactStatuses は有効な対応状況の一覧。
var ContactStatuses = []ContactStatus{
	ContactStatusNew,
	ContactStatusPending,
	ContactStatusContacted,
	ContactStatusQuoted,
	ContactStatusScheduled,
	ContactStatusCompleted,
	ContactStatusCancelled,
}

// Valid は対応状況が定義済みの値かどうかを返す。
func (s ContactStatus) Valid() bool {
	for _, v := range ContactStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ContactRequest はお問い合わせフォームから送信されたリードを表す。
type ContactRequest struct {
	ID          int64         `json:"id"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	Email       string        `json:"email"`
	Phone       *string       `json:"phone"`
	ServiceType *ServiceType  `json:"serviceType"`
	Description *string       `json:"description"`
	Status      ContactStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// NewContactRequest は問い合わせ登録時の入力値を表す。
type NewContactRequest struct {
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Email       string       `json:"email"`
	Phone       *string      `json:"phone,omitempty"`
	ServiceType *ServiceType `json:"serviceType,omitempty"`
	Description *string      `json:"description,omitempty"`
}

// ContactStats は管理画面向けの集計値を表す。
// Pendingはステータスがnewの件数。
type ContactStats struct {
	Total       int `json:"total"`
	NewThisWeek int `json:"newThisWeek"`
	Pending     int `json:"pending"`
	Completed   int `json:"completed"`
}

// ContactFilter は問い合わせ一覧の絞り込み条件を表す。
// ゼロ値は全件を新しい順に返す。
type ContactFilter struct {
	Status *ContactStatus
	Query  string
	From   *time.Time
	To     *time.Time
	Limit  int
}
