package store

import (
	"fmt"
	"time"

	"github.com/vrsandeep/litpush/internal/models"
)

// CreateUser adds a new active user to the database.
func (s *Store) CreateUser(email string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec("INSERT INTO users (email, active, created_at) VALUES (?, 1, ?)", email, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &models.User{ID: id, Email: email, Active: true, CreatedAt: now}, nil
}

// GetUserByID retrieves a user by their primary key.
func (s *Store) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	err := s.db.Get(&user, "SELECT id, email, active, created_at FROM users WHERE id = ?", id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

// SetUserActive enables or disables a user account.
func (s *Store) SetUserActive(id int64, active bool) error {
	_, err := s.db.Exec("UPDATE users SET active = ? WHERE id = ?", active, id)
	return err
}

// DeleteUser removes a user. Cascading deletes remove their subscriptions and records.
func (s *Store) DeleteUser(id int64) error {
	_, err := s.db.Exec("DELETE FROM users WHERE id = ?", id)
	return err
}
