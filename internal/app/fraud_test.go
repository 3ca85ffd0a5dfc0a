package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
)

type fraudRepoStub struct {
	store.Repository

	count  int64
	err    error
	filter store.TransactionLogFilter
}

func (s *fraudRepoStub) CountTransactionLogs(ctx context.Context, filter store.TransactionLogFilter) (int64, error) {
	s.filter = filter
	return s.count, s.err
}

func TestScorePaymentVelocity(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		want  int
	}{
		{name: "no recent initiations", count: 0, want: 0},
		{name: "three recent initiations", count: 3, want: 30},
		{name: "ten initiations hit the ceiling", count: 10, want: 100},
		{name: "burst above the ceiling stays capped", count: 25, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fraudRepoStub{count: tt.count}
			svc := NewService(repo, &publisherStub{}, nil, "", "", "", 0, time.Hour)

			got, err := svc.scorePaymentVelocity(context.Background(), uuid.New(), time.Now())
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected score=%d, got %d", tt.want, got)
			}
		})
	}
}

func TestScorePaymentVelocity_WindowAndAction(t *testing.T) {
	repo := &fraudRepoStub{count: 1}
	svc := NewService(repo, &publisherStub{}, nil, "", "", "", 0, time.Hour)

	studentID := uuid.New()
	now := time.Now()
	if _, err := svc.scorePaymentVelocity(context.Background(), studentID, now); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.filter.Action != domain.ActionPaymentInitiated {
		t.Fatalf("expected the scorer to count %q rows, got %q", domain.ActionPaymentInitiated, repo.filter.Action)
	}
	if repo.filter.StudentID == nil || *repo.filter.StudentID != studentID {
		t.Fatal("expected the scorer to count rows for the given student")
	}
	if want := now.Add(-10 * time.Minute); !repo.filter.Since.Equal(want) {
		t.Fatalf("expected a trailing ten minute window, got since=%s", repo.filter.Since)
	}
}

func TestScorePaymentVelocity_PropagatesLookupFailure(t *testing.T) {
	repo := &fraudRepoStub{err: errors.New("log stream unavailable")}
	svc := NewService(repo, &publisherStub{}, nil, "", "", "", 0, time.Hour)

	if _, err := svc.scorePaymentVelocity(context.Background(), uuid.New(), time.Now()); err == nil {
		t.Fatal("expected the lookup failure to surface to the caller")
	}
}
