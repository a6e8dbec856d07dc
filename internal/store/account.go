package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

// Sealer encrypts tokens at rest. A nil Sealer stores them as given.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type AccountStore struct {
	db  *sql.DB
	box Sealer
}

func NewAccountStore(db *sql.DB, box Sealer) *AccountStore {
	return &AccountStore{db: db, box: box}
}

const accountCols = `id, email, kind, access_token, refresh_token, server_url, username, created_at, updated_at`

func (s *AccountStore) scan(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var access, refresh string
	err := scanner.Scan(&a.ID, &a.Email, &a.Kind, &access, &refresh, &a.ServerURL, &a.Username, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.AccessToken, err = s.open(access); err != nil {
		return nil, fmt.Errorf("open access token for %s: %w", a.Email, err)
	}
	if a.RefreshToken, err = s.open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token for %s: %w", a.Email, err)
	}
	return &a, nil
}

func (s *AccountStore) seal(v string) (string, error) {
	if s.box == nil {
		return v, nil
	}
	return s.box.Seal(v)
}

func (s *AccountStore) open(v string) (string, error) {
	if s.box == nil {
		return v, nil
	}
	return s.box.Open(v)
}

// Create links an account. Emails are stored lower-cased and are unique.
func (s *AccountStore) Create(a model.Account) (*model.Account, error) {
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("unknown account kind %q", a.Kind)
	}
	access, err := s.seal(a.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.seal(a.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO accounts (email, kind, access_token, refresh_token, server_url, username) VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(a.Email)), a.Kind, access, refresh, a.ServerURL, a.Username,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAccount(id)
}

func (s *AccountStore) GetAccount(id int64) (*model.Account, error) {
	a, err := s.scan(s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(email string) (*model.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	a, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

// AccountForCalendar returns the account a selected calendar belongs to.
func (s *AccountStore) AccountForCalendar(calendarID string) (*model.Account, error) {
	row := s.db.QueryRow(
		`SELECT a.id, a.email, a.kind, a.access_token, a.refresh_token, a.server_url, a.username, a.created_at, a.updated_at
		 FROM accounts a JOIN selected_calendars c ON c.account_id = a.id
		 WHERE c.calendar_id = ? ORDER BY c.sort_order LIMIT 1`,
		calendarID,
	)
	a, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account for calendar: %w", err)
	}
	return a, nil
}

func (s *AccountStore) List() ([]model.Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateTokens replaces both tokens. It backs the token refresher.
func (s *AccountStore) UpdateTokens(id int64, accessToken, refreshToken string) error {
	access, err := s.seal(accessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.seal(refreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE accounts SET access_token = ?, refresh_token = ?, updated_at = ? WHERE id = ?`,
		access, refresh, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	return nil
}

// Delete removes the account and, by cascade, its selected calendars.
func (s *AccountStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}
