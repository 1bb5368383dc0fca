package store

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/user/movieverse/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/clause"
)

// Authenticate reports whether an admin row matches both fields exactly.
// A false result never tells which field was wrong.
func (s *SQLStore) Authenticate(ctx context.Context, username, password string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return false, nil
	}

	// The lookup may be case-insensitive under MySQL collations; the exact
	// comparison happens below.
	var admins []model.Admin
	result := s.db.WithContext(ctx).
		Where("username = ?", username).
		Find(&admins)
	if result.Error != nil {
		return false, storeErr("look up admin", result.Error)
	}

	matched := false
	for _, a := range admins {
		userOK := subtle.ConstantTimeCompare([]byte(a.Username), []byte(username)) == 1
		passOK := s.passwordMatches(a.Password, password)
		if userOK && passOK {
			matched = true
		}
	}
	return matched, nil
}

func (s *SQLStore) passwordMatches(stored, given string) bool {
	if s.scheme == PasswordBcrypt {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// CreateAdmin inserts an admin or replaces the password of an existing one
func (s *SQLStore) CreateAdmin(ctx context.Context, username, password string) error {
	username = normalizeUsername(username)
	if username == "" {
		return &ValidationError{Field: "username"}
	}
	if password == "" {
		return &ValidationError{Field: "password"}
	}

	stored := password
	if s.scheme == PasswordBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		stored = string(hash)
	}

	admin := &model.Admin{Username: username, Password: stored}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password"}),
	}).Create(admin)
	if result.Error != nil {
		return storeErr("create admin", result.Error)
	}
	return nil
}

// normalizeUsername is applied on both the write and the lookup side
func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
