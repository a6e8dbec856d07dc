package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/famboard/internal/model"
)

// AssignmentStore keeps manual event assignments. Automatic ones are
// recomputed on every fetch and never stored.
type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) ManualAssignments() (map[model.EventKey][]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT event_key, member_id, assigned_at, assigned_by FROM event_assignments ORDER BY event_key, assigned_at, member_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[model.EventKey][]model.Assignment)
	for rows.Next() {
		var key string
		var a model.Assignment
		if err := rows.Scan(&key, &a.MemberID, &a.AssignedAt, &a.AssignedBy); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out[model.EventKey(key)] = append(out[model.EventKey(key)], a)
	}
	return out, rows.Err()
}

// SetAssignments replaces the stored assignments for key. An empty list
// clears them, which hands the event back to automatic assignment.
func (s *AssignmentStore) SetAssignments(key model.EventKey, assigned []model.Assignment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM event_assignments WHERE event_key = ?`, string(key)); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	for _, a := range assigned {
		_, err := tx.Exec(
			`INSERT INTO event_assignments (event_key, member_id, assigned_at, assigned_by) VALUES (?, ?, ?, ?)
			 ON CONFLICT(event_key, member_id) DO NOTHING`,
			string(key), a.MemberID, a.AssignedAt.UTC(), a.AssignedBy,
		)
		if err != nil {
			return fmt.Errorf("insert assignment for member %d: %w", a.MemberID, err)
		}
	}
	return tx.Commit()
}

// Household joins members and manual assignments for the fetch pipeline.
type Household struct {
	*MemberStore
	*AssignmentStore
}

func NewHousehold(db *sql.DB) *Household {
	return &Household{MemberStore: NewMemberStore(db), AssignmentStore: NewAssignmentStore(db)}
}
