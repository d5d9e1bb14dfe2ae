package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"courtside-chat/internal/identity"
	"courtside-chat/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository is the point-lookup store behind the name resolver.
// Upsert overwrites and is reserved for names taken from authenticated
// claims; EnsureProfile is the write path for names supplied by other users.
type ProfileRepository interface {
	GetByIdentity(ctx context.Context, id identity.ChatIdentity) (models.Profile, error)
	Upsert(ctx context.Context, profile models.Profile) error
	EnsureProfile(ctx context.Context, profile models.Profile) error
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetByIdentity resolves a profile document by chat identity.
func (r *ProfileRepo) GetByIdentity(ctx context.Context, id identity.ChatIdentity) (models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile,
		`SELECT identity, display_name, avatar FROM profiles WHERE identity=$1`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, err
}

// Upsert writes a profile, keeping the newest display name. Only names the
// identity asserted about itself may take this path.
func (r *ProfileRepo) Upsert(ctx context.Context, profile models.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (identity, display_name, avatar, updated_at) VALUES ($1, $2, $3, NOW())
         ON CONFLICT (identity) DO UPDATE SET display_name = EXCLUDED.display_name, avatar = EXCLUDED.avatar, updated_at = NOW()`,
		string(profile.Identity), profile.DisplayName, profile.Avatar)
	return err
}

// EnsureProfile writes a profile only when the identity has none yet. An
// existing row is never touched, so a name another user supplies can fill a
// gap but never replace what is already known.
func (r *ProfileRepo) EnsureProfile(ctx context.Context, profile models.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (identity, display_name, avatar, updated_at) VALUES ($1, $2, $3, NOW())
         ON CONFLICT (identity) DO NOTHING`,
		string(profile.Identity), profile.DisplayName, profile.Avatar)
	return err
}
