package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
)

var profileTestTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestProfileRepo(t *testing.T) (*ProfileRepo, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	repo := NewProfileRepo(mockDB, ProfileRepoOptions{TimeProvider: NewFixedTimeProvider(profileTestTime)})
	return repo, mockDB
}

func TestProfileRepo_GetProfile(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(pgxmock.PgxPoolIface)
		want    auth.Profile
		checkFn func(*testing.T, error)
	}{
		{
			name: "found",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT(.+)FROM profiles WHERE id").
					WithArgs("user-1").
					WillReturnRows(pgxmock.NewRows([]string{"id", "email", "full_name", "role", "created_at"}).
						AddRow("user-1", "a@example.com", "Ada Lovelace", "admin", profileTestTime))
			},
			want: auth.Profile{
				ID: "user-1", Email: "a@example.com", FullName: "Ada Lovelace",
				Role: auth.RoleAdmin, CreatedAt: profileTestTime,
			},
		},
		{
			name: "unknown role degrades to user",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT(.+)FROM profiles WHERE id").
					WithArgs("user-1").
					WillReturnRows(pgxmock.NewRows([]string{"id", "email", "full_name", "role", "created_at"}).
						AddRow("user-1", "a@example.com", "", "superuser", profileTestTime))
			},
			want: auth.Profile{ID: "user-1", Email: "a@example.com", Role: auth.RoleUser, CreatedAt: profileTestTime},
		},
		{
			name: "missing row",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT(.+)FROM profiles WHERE id").
					WithArgs("user-1").
					WillReturnError(pgx.ErrNoRows)
			},
			checkFn: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsNotFound(err))
			},
		},
		{
			name: "query timeout",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT(.+)FROM profiles WHERE id").
					WithArgs("user-1").
					WillReturnError(context.DeadlineExceeded)
			},
			checkFn: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsTimeout(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mockDB := newTestProfileRepo(t)
			tt.setup(mockDB)

			got, err := repo.GetProfile(context.Background(), "user-1")
			if tt.checkFn != nil {
				require.Error(t, err)
				tt.checkFn(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestProfileRepo_GetProfile_EmptyID(t *testing.T) {
	repo, mockDB := newTestProfileRepo(t)

	_, err := repo.GetProfile(context.Background(), " ")
	require.ErrorIs(t, err, ErrProfileIDRequired)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestProfileRepo_CreateProfile(t *testing.T) {
	t.Run("inserts with defaults", func(t *testing.T) {
		repo, mockDB := newTestProfileRepo(t)
		mockDB.ExpectExec("INSERT INTO profiles").
			WithArgs("user-1", "new@example.com", "New User", "user", profileTestTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.CreateProfile(context.Background(), auth.Profile{
			ID: "user-1", Email: " new@example.com ", FullName: "New User",
		})
		require.NoError(t, err)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("existing id is a no-op", func(t *testing.T) {
		repo, mockDB := newTestProfileRepo(t)
		mockDB.ExpectExec("INSERT INTO profiles").
			WithArgs("user-1", "new@example.com", "", "admin", profileTestTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		err := repo.CreateProfile(context.Background(), auth.Profile{
			ID: "user-1", Email: "new@example.com", Role: auth.RoleAdmin,
		})
		require.NoError(t, err)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		repo, mockDB := newTestProfileRepo(t)
		mockDB.ExpectExec("INSERT INTO profiles").
			WithArgs("user-2", "taken@example.com", "", "user", profileTestTime).
			WillReturnError(&pgconn.PgError{
				Code:   "23505",
				Detail: "Key (lower(email))=(taken@example.com) already exists.",
			})

		err := repo.CreateProfile(context.Background(), auth.Profile{ID: "user-2", Email: "taken@example.com"})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("requires id and email", func(t *testing.T) {
		repo, _ := newTestProfileRepo(t)
		assert.ErrorIs(t, repo.CreateProfile(context.Background(), auth.Profile{Email: "x@example.com"}), ErrProfileIDRequired)
		assert.ErrorIs(t, repo.CreateProfile(context.Background(), auth.Profile{ID: "u"}), ErrProfileEmail)
	})
}

func TestProfileRepo_SetRole(t *testing.T) {
	t.Run("promotes user", func(t *testing.T) {
		repo, mockDB := newTestProfileRepo(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT role FROM profiles WHERE id").
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("user"))
		mockDB.ExpectExec("UPDATE profiles SET role").
			WithArgs("user-1", "admin", profileTestTime).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mockDB.ExpectCommit()

		prev, err := repo.SetRole(context.Background(), "user-1", auth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleUser, prev)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown user rolls back", func(t *testing.T) {
		repo, mockDB := newTestProfileRepo(t)
		mockDB.ExpectBegin()
		mockDB.ExpectQuery("SELECT role FROM profiles WHERE id").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectRollback()

		_, err := repo.SetRole(context.Background(), "ghost", auth.RoleAdmin)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		repo, _ := newTestProfileRepo(t)
		_, err := repo.SetRole(context.Background(), "user-1", auth.Role("root"))
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "role", apperrors.GetField(err))
	})
}

func TestProfileRepo_SetRole_UpdateFailure(t *testing.T) {
	repo, mockDB := newTestProfileRepo(t)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT role FROM profiles WHERE id").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("user"))
	mockDB.ExpectExec("UPDATE profiles SET role").
		WithArgs("user-1", "admin", profileTestTime).
		WillReturnError(errors.New("connection reset"))
	mockDB.ExpectRollback()

	_, err := repo.SetRole(context.Background(), "user-1", auth.RoleAdmin)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
