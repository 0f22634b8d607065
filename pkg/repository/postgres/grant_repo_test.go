package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"docvault/pkg/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func setupGrantRepoTest(t *testing.T) (*GrantRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewGrantRepository(sqlxDB)

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func TestGrantRepository_Upsert(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	grant := &models.Grant{
		ID:         uuid.New(),
		DocumentID: "alice/report.txt",
		Grantor:    "alice",
		Grantee:    "bob",
		ExpiresAt:  time.Now().Add(time.Hour),
		Propagate:  true,
		CreatedAt:  time.Now(),
	}

	mock.ExpectExec("INSERT INTO grants").
		WithArgs(
			grant.ID,
			grant.DocumentID,
			grant.Grantor,
			grant.Grantee,
			grant.ExpiresAt,
			grant.Propagate,
			grant.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), grant)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_Get(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "document_id", "grantor", "grantee", "expires_at", "propagate", "created_at"}).
		AddRow(id, "alice/report.txt", "alice", "bob", now.Add(time.Hour), false, now)

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("alice/report.txt", "bob").
		WillReturnRows(rows)

	grant, err := repo.Get(context.Background(), "alice/report.txt", "bob")
	assert.NoError(t, err)
	assert.Equal(t, id, grant.ID)
	assert.Equal(t, "bob", grant.Grantee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_Get_NotFound(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("alice/report.txt", "mallory").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "alice/report.txt", "mallory")
	assert.ErrorIs(t, err, models.ErrGrantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_DeleteByDocument(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM grants").
		WithArgs("alice/report.txt").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.DeleteByDocument(context.Background(), "alice/report.txt")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_DeleteExpired(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectExec("DELETE FROM grants").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.DeleteExpired(context.Background(), now)
	assert.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantRepository_List(t *testing.T) {
	repo, mock, cleanup := setupGrantRepoTest(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "document_id", "grantor", "grantee", "expires_at", "propagate", "created_at"}).
		AddRow(uuid.New(), "alice/report.txt", "alice", "bob", now.Add(time.Hour), false, now).
		AddRow(uuid.New(), "alice/report.txt", "bob", "carol", now.Add(time.Minute), false, now)

	mock.ExpectQuery("SELECT (.+) FROM grants").
		WithArgs("alice/report.txt").
		WillReturnRows(rows)

	grants, err := repo.List(context.Background(), &models.ListGrantsRequest{DocumentID: "alice/report.txt"})
	assert.NoError(t, err)
	assert.Len(t, grants, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
