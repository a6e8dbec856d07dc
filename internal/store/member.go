package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, name, email, color, avatar_emoji, is_default, sort_order, created_at, updated_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	err := scanner.Scan(&m.ID, &m.Name, &m.Email, &m.Color, &m.AvatarEmoji, &m.IsDefault, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MemberStore) Create(name, email, color, avatarEmoji string) (*model.Member, error) {
	var maxOrder int
	err := s.db.QueryRow("SELECT COALESCE(MAX(sort_order), -1) FROM members").Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO members (name, email, color, avatar_emoji, sort_order) VALUES (?, ?, ?, ?, ?)",
		name, strings.ToLower(strings.TrimSpace(email)), color, avatarEmoji, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// ListMembers returns members in sort order.
func (s *MemberStore) ListMembers() ([]model.Member, error) {
	rows, err := s.db.Query("SELECT " + memberCols + " FROM members ORDER BY sort_order, id")
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	m, err := scanMember(s.db.QueryRow("SELECT "+memberCols+" FROM members WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) Update(id int64, name, email, color, avatarEmoji string) (*model.Member, error) {
	_, err := s.db.Exec(
		"UPDATE members SET name = ?, email = ?, color = ?, avatar_emoji = ?, updated_at = ? WHERE id = ?",
		name, strings.ToLower(strings.TrimSpace(email)), color, avatarEmoji, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// SetDefault makes id the only default member. Unassigned events go to it.
func (s *MemberStore) SetDefault(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE members SET is_default = 0 WHERE is_default = 1"); err != nil {
		return fmt.Errorf("clear default member: %w", err)
	}
	result, err := tx.Exec("UPDATE members SET is_default = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("set default member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("member %d not found", id)
	}
	return tx.Commit()
}

func (s *MemberStore) UpdateSortOrder(ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE members SET sort_order = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.Exec(i, id); err != nil {
			return fmt.Errorf("update sort order for id %d: %w", id, err)
		}
	}
	return tx.Commit()
}
