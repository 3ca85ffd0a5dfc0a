/**
 * @description
 * This file implements the fraud velocity scorer. The score is a heuristic
 * over the transaction log: each payment initiation by the same student in
 * the trailing ten minutes adds ten points, capped at one hundred. The score
 * is advisory and stored on the payment and its logs; it never blocks an
 * operation by itself.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
)

const (
	velocityWindow       = 10 * time.Minute
	velocityPointsPerHit = 10
	velocityScoreCeiling = 100
)

// scorePaymentVelocity scores a student's recent payment initiation rate.
func (s *Service) scorePaymentVelocity(ctx context.Context, studentID uuid.UUID, now time.Time) (int, error) {
	count, err := s.repo.CountTransactionLogs(ctx, store.TransactionLogFilter{
		Action:    domain.ActionPaymentInitiated,
		StudentID: &studentID,
		Since:     now.Add(-velocityWindow),
	})
	if err != nil {
		return 0, err
	}

	score := int(count) * velocityPointsPerHit
	if score > velocityScoreCeiling {
		score = velocityScoreCeiling
	}
	return score, nil
}
