/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for the directory, fee, assignment and payment tables. The
 * transactional reconciliation methods live in postgres_reconcile.go and the
 * log-stream methods in postgres_logs.go.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindSchoolByID retrieves a school by its ID.
func (r *PostgresRepository) FindSchoolByID(ctx context.Context, id uuid.UUID) (*domain.School, error) {
	var school domain.School
	query := `SELECT id, name, email FROM schools WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&school.ID, &school.Name, &school.Email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSchoolNotFound
		}
		return nil, err
	}
	return &school, nil
}

// FindStudentByID retrieves a student by their ID.
func (r *PostgresRepository) FindStudentByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	var student domain.Student
	query := `
		SELECT id, school_id, name, email, COALESCE(department, '') AS department, COALESCE(year_of_study, '') AS year_of_study
		FROM students
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&student.ID, &student.SchoolID, &student.Name, &student.Email,
		&student.Department, &student.YearOfStudy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

// FindStudentsByCohort retrieves all of a school's students matching the
// selector. Empty selector fields are not filtered on.
func (r *PostgresRepository) FindStudentsByCohort(ctx context.Context, schoolID uuid.UUID, cohort domain.CohortSelector) ([]domain.Student, error) {
	query := `
		SELECT id, school_id, name, email, COALESCE(department, '') AS department, COALESCE(year_of_study, '') AS year_of_study
		FROM students
		WHERE school_id = $1
		  AND ($2 = '' OR department = $2)
		  AND ($3 = '' OR year_of_study = $3)
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, schoolID, cohort.Department, cohort.YearOfStudy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		var student domain.Student
		err := rows.Scan(
			&student.ID, &student.SchoolID, &student.Name, &student.Email,
			&student.Department, &student.YearOfStudy,
		)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}

	return students, nil
}

// FindActiveProviderConfig retrieves the highest-priority active credentials a
// school holds for a provider. Credentials are resolved per-operation and
// never cached.
func (r *PostgresRepository) FindActiveProviderConfig(ctx context.Context, schoolID uuid.UUID, provider string) (*domain.ProviderConfig, error) {
	var cfg domain.ProviderConfig
	query := `
		SELECT school_id, provider, secret_key, priority, active, created_at
		FROM provider_configs
		WHERE school_id = $1 AND provider = $2 AND active = true
		ORDER BY priority ASC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, schoolID, provider).Scan(
		&cfg.SchoolID, &cfg.Provider, &cfg.SecretKey, &cfg.Priority, &cfg.Active, &cfg.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProviderNotConfigured
		}
		return nil, err
	}
	return &cfg, nil
}

// CreateFee inserts a new fee record into the database.
func (r *PostgresRepository) CreateFee(ctx context.Context, fee *domain.Fee) error {
	query := `
		INSERT INTO fees (
			id, school_id, fee_type, amount, due_date, academic_session, allow_partial_payment, description
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		fee.ID,
		fee.SchoolID,
		fee.FeeType,
		fee.Amount,
		fee.DueDate,
		fee.AcademicSession,
		fee.AllowPartialPayment,
		fee.Description,
	)
	return err
}

// FindFeeByID retrieves a fee by its ID.
func (r *PostgresRepository) FindFeeByID(ctx context.Context, id uuid.UUID) (*domain.Fee, error) {
	var fee domain.Fee
	query := `
		SELECT id, school_id, fee_type, amount, due_date, academic_session, allow_partial_payment,
		       COALESCE(description, '') AS description, created_at, updated_at
		FROM fees
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&fee.ID, &fee.SchoolID, &fee.FeeType, &fee.Amount, &fee.DueDate,
		&fee.AcademicSession, &fee.AllowPartialPayment, &fee.Description,
		&fee.CreatedAt, &fee.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFeeNotFound
		}
		return nil, err
	}
	return &fee, nil
}

// CountAssignmentsByFee counts assignments referencing a fee.
func (r *PostgresRepository) CountAssignmentsByFee(ctx context.Context, feeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM fee_assignments WHERE fee_id = $1", feeID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteFeeIfUnassigned deletes a fee after verifying, inside one transaction,
// that no assignments reference it.
func (r *PostgresRepository) DeleteFeeIfUnassigned(ctx context.Context, feeID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM fee_assignments WHERE fee_id = $1)", feeID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrFeeHasAssignments
	}

	result, err := tx.Exec(ctx, "DELETE FROM fees WHERE id = $1", feeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFeeNotFound
	}

	return tx.Commit(ctx)
}

// CreateFeeAssignments inserts all assignment rows atomically. A partial
// cohort fan-out must never be persisted.
func (r *PostgresRepository) CreateFeeAssignments(ctx context.Context, assignments []domain.FeeAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO fee_assignments (
			id, fee_id, school_id, student_id, department, year_of_study, due_date, amount_due, amount_paid, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, a := range assignments {
		_, err := tx.Exec(ctx, query,
			a.ID,
			a.FeeID,
			a.SchoolID,
			a.StudentID,
			a.Cohort.Department,
			a.Cohort.YearOfStudy,
			a.DueDate,
			a.AmountDue,
			a.AmountPaid,
			a.Status,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindAssignmentByFeeAndStudent retrieves the assignment linking a fee to a student.
func (r *PostgresRepository) FindAssignmentByFeeAndStudent(ctx context.Context, feeID, studentID uuid.UUID) (*domain.FeeAssignment, error) {
	var a domain.FeeAssignment
	query := `
		SELECT id, fee_id, school_id, student_id, COALESCE(department, '') AS department,
		       COALESCE(year_of_study, '') AS year_of_study, due_date, amount_due, amount_paid, status,
		       created_at, updated_at
		FROM fee_assignments
		WHERE fee_id = $1 AND student_id = $2
	`
	err := r.db.QueryRow(ctx, query, feeID, studentID).Scan(
		&a.ID, &a.FeeID, &a.SchoolID, &a.StudentID, &a.Cohort.Department,
		&a.Cohort.YearOfStudy, &a.DueDate, &a.AmountDue, &a.AmountPaid, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAssignmentsByStudent retrieves all fee assignments for a student.
func (r *PostgresRepository) ListAssignmentsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.FeeAssignment, error) {
	query := `
		SELECT id, fee_id, school_id, student_id, COALESCE(department, '') AS department,
		       COALESCE(year_of_study, '') AS year_of_study, due_date, amount_due, amount_paid, status,
		       created_at, updated_at
		FROM fee_assignments
		WHERE student_id = $1
		ORDER BY due_date ASC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.FeeAssignment
	for rows.Next() {
		var a domain.FeeAssignment
		err := rows.Scan(
			&a.ID, &a.FeeID, &a.SchoolID, &a.StudentID, &a.Cohort.Department,
			&a.Cohort.YearOfStudy, &a.DueDate, &a.AmountDue, &a.AmountPaid, &a.Status,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// MarkOverdueAssignments flips unpaid assignments past their due date to
// overdue. Fully paid assignments are never touched.
func (r *PostgresRepository) MarkOverdueAssignments(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE fee_assignments
		SET status = 'overdue', updated_at = NOW()
		WHERE due_date < $1
		  AND status IN ('assigned', 'partially_paid')
	`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CreatePayment inserts a new payment record into the database.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, student_id, school_id, fee_id, amount, provider, provider_reference, status, fraud_score
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.StudentID,
		payment.SchoolID,
		payment.FeeID,
		payment.Amount,
		payment.Provider,
		payment.Metadata.Reference,
		payment.Status,
		payment.FraudScore,
	)
	return err
}

// SetPaymentProviderReference records the provider's charge reference once the
// charge has been initialized. The unique index on provider_reference makes
// this the idempotency key for webhook delivery.
func (r *PostgresRepository) SetPaymentProviderReference(ctx context.Context, paymentID uuid.UUID, reference string) error {
	query := `UPDATE payments SET provider_reference = $1, status = 'pending', updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, reference, paymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// SetPaymentReceiptURL records the receipt link after invoice generation.
func (r *PostgresRepository) SetPaymentReceiptURL(ctx context.Context, paymentID uuid.UUID, receiptURL string) error {
	query := `UPDATE payments SET receipt_url = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, receiptURL, paymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// FindPaymentByID retrieves a payment by its ID.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.findPayment(ctx, "id = $1", id)
}

// FindPaymentByProviderReference retrieves a payment by the provider's charge
// reference. This is the webhook idempotency lookup.
func (r *PostgresRepository) FindPaymentByProviderReference(ctx context.Context, reference string) (*domain.Payment, error) {
	return r.findPayment(ctx, "provider_reference = $1", reference)
}

func (r *PostgresRepository) findPayment(ctx context.Context, where string, arg interface{}) (*domain.Payment, error) {
	var p domain.Payment
	query := `
		SELECT id, student_id, school_id, fee_id, amount, provider,
		       COALESCE(provider_reference, '') AS provider_reference, provider_payload,
		       status, fraud_score, receipt_url, created_at, updated_at
		FROM payments
		WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.StudentID, &p.SchoolID, &p.FeeID, &p.Amount, &p.Provider,
		&p.Metadata.Reference, &p.Metadata.RawPayload,
		&p.Status, &p.FraudScore, &p.ReceiptURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateInvoice inserts a new invoice record into the database.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, invoice_number, payment_id, student_id, school_id, fee_id, amount, tax, total_amount, receipt_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.PaymentID,
		invoice.StudentID,
		invoice.SchoolID,
		invoice.FeeID,
		invoice.Amount,
		invoice.Tax,
		invoice.TotalAmount,
		invoice.ReceiptURL,
	)
	return err
}
