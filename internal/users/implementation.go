// internal/users/implementation.go
package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"golang.org/x/time/rate"

	"assetflow/internal/loans"
)

// service implements the Service interface.
type service struct {
	db          *sql.DB
	rateLimiter *rate.Limiter
}

// NewService creates a new user directory instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:          db,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 attempts per minute
	}
}

// RegisterUser creates a new user with the given role. An empty role defaults
// to EMPLOYEE.
func (s *service) RegisterUser(ctx context.Context, username, email, fullName, password, role string) (*User, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required")
	}
	if role == "" {
		role = RoleEmployee
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username: username,
		Email:    email,
		FullName: fullName,
		Role:     role,
		Enabled:  true,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name, password_hash, salt, role_id, enabled)
		VALUES ($1, $2, $3, $4, $5, (SELECT id FROM roles WHERE name = $6), TRUE)
		RETURNING id, created_at, updated_at
	`, username, email, fullName, passwordHash, salt, role).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a user's credentials and returns the user if
// successful. Attempts are rate limited.
func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := verifyPassword(password, user.salt, user.passwordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok || !user.Enabled {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.get(ctx, selectUser+` WHERE u.id = $1`, id)
}

func (s *service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.get(ctx, selectUser+` WHERE u.username = $1`, username)
}

// ListManagers returns enabled users that can approve loans. The realtime
// fan-out uses this set for manager broadcasts.
func (s *service) ListManagers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+`
		WHERE r.name IN ($1, $2) AND u.enabled
		ORDER BY u.username
	`, RoleManager, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("query managers: %w", err)
	}
	defer rows.Close()

	var result []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate managers: %w", err)
	}
	return result, nil
}

// HasCapability resolves a capability from the user's role at call time, so a
// demoted manager loses approval rights immediately.
func (s *service) HasCapability(ctx context.Context, userID int64, capability loans.Capability) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !user.Enabled {
		return false, nil
	}

	switch capability {
	case loans.CapabilityBorrower:
		return true, nil
	case loans.CapabilityApprover:
		return user.Role == RoleManager || user.Role == RoleAdmin, nil
	default:
		return false, nil
	}
}

const selectUser = `
	SELECT u.id, u.username, u.email, u.full_name, u.password_hash, u.salt, r.name, u.enabled, u.created_at, u.updated_at
	FROM users u
	JOIN roles r ON r.id = u.role_id`

func (s *service) get(ctx context.Context, query string, args ...interface{}) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	user := &User{}
	var fullName sql.NullString
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &fullName, &user.passwordHash, &user.salt,
		&user.Role, &user.Enabled, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.FullName = fullName.String
	return user, nil
}
