package postgres

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-dispatch/internal/repository"
)

type userDirectory struct {
	*BaseRepository
}

// NewUserDirectory reads contact details from the account users table.
func NewUserDirectory(base *BaseRepository) repository.UserDirectory {
	return &userDirectory{base}
}

// GetEmail returns repository.ErrNotFound when the user is unknown or has
// no address on file.
func (r *userDirectory) GetEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	query := r.sb.Select("COALESCE(email, '')").
		From("users").
		Where(sq.Eq{"id": userID})

	var email string
	if err := r.get(ctx, &email, query, "unable to get user email"); err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", repository.ErrNotFound
	}
	return email, nil
}
