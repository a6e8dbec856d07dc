package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/famboard/internal/model"
)

type CalendarStore struct {
	db *sql.DB
}

func NewCalendarStore(db *sql.DB) *CalendarStore {
	return &CalendarStore{db: db}
}

// ListSelected returns the selected calendars in display order, joined
// with their account's email.
func (s *CalendarStore) ListSelected() ([]model.SelectedCalendar, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.calendar_id, c.account_id, c.summary, a.email
		 FROM selected_calendars c JOIN accounts a ON a.id = c.account_id
		 ORDER BY c.sort_order, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query selected calendars: %w", err)
	}
	defer rows.Close()

	var sels []model.SelectedCalendar
	for rows.Next() {
		var c model.SelectedCalendar
		if err := rows.Scan(&c.ID, &c.CalendarID, &c.AccountID, &c.Summary, &c.AccountEmail); err != nil {
			return nil, fmt.Errorf("scan selected calendar: %w", err)
		}
		sels = append(sels, c)
	}
	return sels, rows.Err()
}

// ReplaceSelected swaps the whole selection in one transaction. Order in
// sels becomes the display and merge order.
func (s *CalendarStore) ReplaceSelected(sels []model.SelectedCalendar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM selected_calendars`); err != nil {
		return fmt.Errorf("clear selected calendars: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO selected_calendars (calendar_id, account_id, summary, sort_order) VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id, calendar_id) DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, c := range sels {
		if _, err := stmt.Exec(c.CalendarID, c.AccountID, c.Summary, i); err != nil {
			return fmt.Errorf("insert selected calendar %s: %w", c.CalendarID, err)
		}
	}
	return tx.Commit()
}
