package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
	"github.com/target/storefront-api/internal/ports"
)

const profileColumns = `id, email, full_name, role, created_at`

// ProfileRepo stores application profiles keyed by the identity provider's user id.
type ProfileRepo struct {
	db           DBTX
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// ProfileRepoOptions configures a ProfileRepo.
type ProfileRepoOptions struct {
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db DBTX, opts ProfileRepoOptions) *ProfileRepo {
	tp := opts.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileRepo{db: db, timeProvider: tp, logger: logger.With("component", "profile_repo")}
}

// GetProfile loads the profile of a user. A missing row maps to a NotFound AppError.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (auth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return auth.Profile{}, ErrProfileIDRequired
	}

	var (
		p    auth.Profile
		role string
	)
	err := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID,
	).Scan(&p.ID, &p.Email, &p.FullName, &role, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Profile{}, apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "profile %s not found", userID)
		}
		return auth.Profile{}, fmt.Errorf("get profile: %w", apperrors.MapDBError(err))
	}
	p.Role = auth.ParseRole(role)
	return p, nil
}

// CreateProfile inserts a profile. Creating a profile that already exists for the same
// user id is a no-op; an email already owned by another user is a Conflict.
func (r *ProfileRepo) CreateProfile(ctx context.Context, p auth.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrProfileIDRequired
	}
	email := strings.TrimSpace(p.Email)
	if email == "" {
		return ErrProfileEmail
	}
	role := p.Role
	if !role.Valid() {
		role = auth.RoleUser
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.timeProvider.Now().UTC()
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, email, strings.TrimSpace(p.FullName), string(role), createdAt,
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", apperrors.MapDBError(err))
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "profile already exists", "user_id", p.ID)
	}
	return nil
}

// SetRole changes the role of a profile and returns the previous role.
func (r *ProfileRepo) SetRole(ctx context.Context, userID string, role auth.Role) (auth.Role, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrProfileIDRequired
	}
	if !role.Valid() {
		return "", apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
	}

	var previous string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT role FROM profiles WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&previous); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1`,
			userID, string(role), r.timeProvider.Now().UTC(),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.Wrapf(err, apperrors.ErrCodeNotFound, "profile %s not found", userID)
		}
		return "", fmt.Errorf("set role: %w", apperrors.MapDBError(err))
	}

	r.logger.InfoContext(ctx, "profile role changed", "user_id", userID, "from", previous, "to", role)
	return auth.ParseRole(previous), nil
}
