package model

import (
	"strconv"
	"time"
)

type AccountKind string

const (
	AccountGoogle AccountKind = "google"
	AccountCalDAV AccountKind = "caldav"
	AccountICS    AccountKind = "ics"
)

func (k AccountKind) Valid() bool {
	switch k {
	case AccountGoogle, AccountCalDAV, AccountICS:
		return true
	}
	return false
}

// Account is a linked external calendar account. Tokens are held decrypted
// in memory and encrypted by the store at rest.
type Account struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	Kind         AccountKind `json:"kind"`
	AccessToken  string      `json:"-"`
	RefreshToken string      `json:"-"`
	ServerURL    string      `json:"server_url,omitempty"`
	Username     string      `json:"username,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// SelectedCalendar is one calendar the household chose to show.
type SelectedCalendar struct {
	ID           int64  `json:"id"`
	CalendarID   string `json:"calendar_id"`
	AccountID    int64  `json:"account_id"`
	Summary      string `json:"summary"`
	AccountEmail string `json:"account_email"`
}

// FetchKey identifies the (account, calendar) pair a fetch is issued for.
func (s SelectedCalendar) FetchKey() string {
	return strconv.FormatInt(s.AccountID, 10) + ":" + s.CalendarID
}
