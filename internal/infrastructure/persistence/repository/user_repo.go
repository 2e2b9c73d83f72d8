package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository on sqlite
type UserRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewUserRepository creates a new sqlite user repository
func NewUserRepository(db *sqlite.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a user by id
func (r *UserRepository) Get(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, email, username, siren_number, phone, address, created_at
		FROM users
		WHERE id = ?
	`

	var user entity.User
	var siren, phone, address sql.NullString
	err := r.db.GetExecutor(ctx).QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Username, &siren, &phone, &address, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.SIREN = stringPtr(siren)
	user.Phone = stringPtr(phone)
	user.Address = stringPtr(address)
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// Upsert inserts the user or updates its profile fields
func (r *UserRepository) Upsert(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, email, username, siren_number, phone, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			username = excluded.username,
			siren_number = excluded.siren_number,
			phone = excluded.phone,
			address = excluded.address
	`

	_, err := r.db.GetExecutor(ctx).ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		nullString(user.SIREN),
		nullString(user.Phone),
		nullString(user.Address),
		user.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert user", zap.String("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
