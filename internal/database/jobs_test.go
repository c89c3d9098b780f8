package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/database"
	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

func newJobRepo(t *testing.T) (*database.JobRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, setupErr := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	t.Cleanup(func() { db.Close() })

	return database.NewJobRepository(db), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func testJob() *domain.JobRecord {
	return &domain.JobRecord{
		ID:           uuid.New(),
		Source:       "listing_api",
		Title:        "Landscape Architect",
		Description:  "Public realm projects.",
		CompanyName:  "Studio North",
		LocationText: "Toronto, Canada",
		Slug:         "landscape-architect-studio-north-toronto",
		Fingerprint:  "abc123",
	}
}

func TestJobRepository_InsertNew(t *testing.T) {
	t.Run("new row inserted", func(t *testing.T) {
		repo, mock := newJobRepo(t)
		job := testJob()

		mock.ExpectQuery("INSERT INTO jobs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(job.ID.String(), time.Now()))

		inserted, err := repo.InsertNew(context.Background(), job)
		if err != nil {
			t.Fatalf("InsertNew() error = %v", err)
		}
		if !inserted {
			t.Error("expected inserted = true")
		}
		if job.Status != domain.StatusPending {
			t.Errorf("Status = %q, want pending", job.Status)
		}

		checkExpectations(t, mock)
	})

	t.Run("unique conflict reports duplicate, not error", func(t *testing.T) {
		repo, mock := newJobRepo(t)

		mock.ExpectQuery("INSERT INTO jobs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

		inserted, err := repo.InsertNew(context.Background(), testJob())
		if err != nil {
			t.Fatalf("InsertNew() error = %v", err)
		}
		if inserted {
			t.Error("expected inserted = false on conflict")
		}

		checkExpectations(t, mock)
	})
}

func TestJobRepository_ApplyRelevance_CompareAndSet(t *testing.T) {
	t.Run("pristine pending row accepts the write", func(t *testing.T) {
		repo, mock := newJobRepo(t)
		id := uuid.New()

		mock.ExpectExec("UPDATE jobs").
			WithArgs(id, "landscape", 0.9, 0.9, false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.ApplyRelevance(context.Background(), id,
			&domain.RelevanceResult{Relevant: true, Category: "landscape", Confidence: 0.9}, false)
		if err != nil {
			t.Fatalf("ApplyRelevance() error = %v", err)
		}

		checkExpectations(t, mock)
	})

	t.Run("moved stage marker rejects the write", func(t *testing.T) {
		repo, mock := newJobRepo(t)
		id := uuid.New()

		mock.ExpectExec("UPDATE jobs").
			WithArgs(id, "landscape", 0.9, 0.9, false).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.ApplyRelevance(context.Background(), id,
			&domain.RelevanceResult{Relevant: true, Category: "landscape", Confidence: 0.9}, false)
		if !errors.Is(err, domain.ErrStaleWrite) {
			t.Fatalf("ApplyRelevance() error = %v, want ErrStaleWrite", err)
		}

		checkExpectations(t, mock)
	})
}

func TestJobRepository_MarkNeedsReview_AlreadyTerminal(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE jobs").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkNeedsReview(context.Background(), id); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("MarkNeedsReview() error = %v, want ErrStaleWrite", err)
	}

	checkExpectations(t, mock)
}

func TestJobRepository_SweepExpired(t *testing.T) {
	repo, mock := newJobRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE jobs").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	swept, err := repo.SweepExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if swept != 3 {
		t.Errorf("swept = %d, want 3", swept)
	}

	checkExpectations(t, mock)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newJobRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM jobs").
		WithArgs(id).
		WillReturnError(context.DeadlineExceeded)

	if _, err := repo.GetByID(context.Background(), id); err == nil {
		t.Fatal("expected error passthrough")
	}

	mock.ExpectQuery("FROM jobs").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}

	checkExpectations(t, mock)
}
