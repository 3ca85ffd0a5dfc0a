/**
 * @description
 * This file contains the fee administration logic: fee creation and deletion
 * by school admins, assignment of fees to single students or whole cohorts,
 * and the student-facing assignment listing. Cohort fan-out is all-or-nothing
 * so a half-assigned cohort can never be observed.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
)

// CreateFee publishes a new fee for a school.
func (s *Service) CreateFee(ctx context.Context, schoolID uuid.UUID, payload domain.CreateFeePayload, meta domain.LogMetadata) (*domain.Fee, error) {
	if payload.FeeType == "" {
		return nil, ValidationError("fee type is required")
	}
	if payload.Amount <= 0 {
		return nil, ValidationError("amount must be a positive number of kobo")
	}
	if payload.AcademicSession == "" {
		return nil, ValidationError("academic session is required")
	}
	if payload.DueDate.IsZero() {
		return nil, ValidationError("due date is required")
	}
	if !payload.DueDate.After(time.Now()) {
		return nil, ValidationError("due date must be in the future")
	}

	if _, err := s.repo.FindSchoolByID(ctx, schoolID); err != nil {
		if errors.Is(err, store.ErrSchoolNotFound) {
			return nil, NotFoundError("school not found", err)
		}
		return nil, InternalError("failed to load school", err)
	}

	allowPartial := true
	if payload.AllowPartialPayment != nil {
		allowPartial = *payload.AllowPartialPayment
	}

	fee := &domain.Fee{
		ID:                  uuid.New(),
		SchoolID:            schoolID,
		FeeType:             payload.FeeType,
		Amount:              payload.Amount,
		DueDate:             payload.DueDate,
		AcademicSession:     payload.AcademicSession,
		AllowPartialPayment: allowPartial,
		Description:         payload.Description,
	}
	if err := s.repo.CreateFee(ctx, fee); err != nil {
		return nil, InternalError("failed to create fee", err)
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeFee,
		EntityID:   fee.ID,
		Action:     domain.ActionFeeCreated,
		Actor:      domain.AdminActor(schoolID),
		Metadata:   meta,
	})
	return fee, nil
}

// DeleteFee removes a fee that no student has been assigned yet. A fee with
// assignments is part of the financial record and cannot be deleted.
func (s *Service) DeleteFee(ctx context.Context, schoolID, feeID uuid.UUID, meta domain.LogMetadata) error {
	fee, err := s.repo.FindFeeByID(ctx, feeID)
	if err != nil {
		if errors.Is(err, store.ErrFeeNotFound) {
			return NotFoundError("fee not found", err)
		}
		return InternalError("failed to load fee", err)
	}
	if fee.SchoolID != schoolID {
		return AuthorizationError("fee belongs to another school")
	}

	if err := s.repo.DeleteFeeIfUnassigned(ctx, feeID); err != nil {
		if errors.Is(err, store.ErrFeeHasAssignments) {
			return ConflictError("fee has existing assignments and cannot be deleted", err)
		}
		if errors.Is(err, store.ErrFeeNotFound) {
			return NotFoundError("fee not found", err)
		}
		return InternalError("failed to delete fee", err)
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeFee,
		EntityID:   feeID,
		Action:     domain.ActionFeeDeleted,
		Actor:      domain.AdminActor(schoolID),
		Metadata:   meta,
	})
	return nil
}

// CreateFeeAssignment assigns a fee to one student or to every student in a
// cohort. The amount due is snapshotted from the fee at assignment time.
func (s *Service) CreateFeeAssignment(ctx context.Context, schoolID uuid.UUID, payload domain.CreateFeeAssignmentPayload, meta domain.LogMetadata) ([]domain.FeeAssignment, error) {
	if payload.StudentID == nil && payload.Cohort.IsZero() {
		return nil, ValidationError("either a student id or a cohort selector is required")
	}
	if !payload.DueDate.IsZero() && !payload.DueDate.After(time.Now()) {
		return nil, ValidationError("due date must be in the future")
	}

	fee, err := s.repo.FindFeeByID(ctx, payload.FeeID)
	if err != nil {
		if errors.Is(err, store.ErrFeeNotFound) {
			return nil, NotFoundError("fee not found", err)
		}
		return nil, InternalError("failed to load fee", err)
	}
	if fee.SchoolID != schoolID {
		return nil, AuthorizationError("fee belongs to another school")
	}

	dueDate := payload.DueDate
	if dueDate.IsZero() {
		dueDate = fee.DueDate
	}

	var students []domain.Student
	if payload.StudentID != nil {
		student, err := s.repo.FindStudentByID(ctx, *payload.StudentID)
		if err != nil {
			if errors.Is(err, store.ErrStudentNotFound) {
				return nil, NotFoundError("student not found", err)
			}
			return nil, InternalError("failed to load student", err)
		}
		if student.SchoolID != schoolID {
			return nil, AuthorizationError("student belongs to another school")
		}
		students = []domain.Student{*student}
	} else {
		students, err = s.repo.FindStudentsByCohort(ctx, schoolID, payload.Cohort)
		if err != nil {
			return nil, InternalError("failed to resolve cohort", err)
		}
		if len(students) == 0 {
			return nil, NotFoundError("no students match the cohort selector", nil)
		}
	}

	assignments := make([]domain.FeeAssignment, 0, len(students))
	for _, student := range students {
		// Skip students who already carry this fee; re-running a cohort
		// assignment must not reset anyone's balance.
		if _, err := s.repo.FindAssignmentByFeeAndStudent(ctx, fee.ID, student.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrAssignmentNotFound) {
			return nil, InternalError("failed to check existing assignment", err)
		}
		assignments = append(assignments, domain.FeeAssignment{
			ID:         uuid.New(),
			FeeID:      fee.ID,
			SchoolID:   schoolID,
			StudentID:  student.ID,
			Cohort:     payload.Cohort,
			DueDate:    dueDate,
			AmountDue:  fee.Amount,
			AmountPaid: 0,
			Status:     domain.AssignmentStatusAssigned,
		})
	}
	if len(assignments) == 0 {
		return nil, ConflictError("all matching students already carry this fee", nil)
	}

	if err := s.repo.CreateFeeAssignments(ctx, assignments); err != nil {
		return nil, InternalError("failed to create fee assignments", err)
	}

	for i := range assignments {
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypeFeeAssignment,
			EntityID:   assignments[i].ID,
			Action:     domain.ActionFeeAssigned,
			Actor:      domain.AdminActor(schoolID),
			Metadata:   meta,
		})
	}
	return assignments, nil
}

// ListStudentFeeAssignments returns the student's fee obligations.
func (s *Service) ListStudentFeeAssignments(ctx context.Context, studentID uuid.UUID) ([]domain.FeeAssignment, error) {
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		if errors.Is(err, store.ErrStudentNotFound) {
			return nil, NotFoundError("student not found", err)
		}
		return nil, InternalError("failed to load student", err)
	}
	assignments, err := s.repo.ListAssignmentsByStudent(ctx, studentID)
	if err != nil {
		return nil, InternalError("failed to list fee assignments", err)
	}
	return assignments, nil
}

// ListAuditLogs returns a school's audit history.
func (s *Service) ListAuditLogs(ctx context.Context, schoolID uuid.UUID, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	if _, err := s.repo.FindSchoolByID(ctx, schoolID); err != nil {
		if errors.Is(err, store.ErrSchoolNotFound) {
			return nil, NotFoundError("school not found", err)
		}
		return nil, InternalError("failed to load school", err)
	}
	logs, err := s.repo.ListAuditLogs(ctx, schoolID, filter)
	if err != nil {
		return nil, InternalError("failed to list audit logs", err)
	}
	return logs, nil
}

// MarkOverdueAssignments flips unpaid assignments past their due date to
// overdue. Used by the scheduled sweep.
func (s *Service) MarkOverdueAssignments(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.MarkOverdueAssignments(ctx, now)
}
