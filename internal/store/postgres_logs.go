/**
 * @description
 * This file implements the log-stream methods of the `Repository` interface:
 * the append-only transaction log used for operational telemetry and fraud
 * velocity counting, and the append-only audit log used for compliance
 * reporting. Neither stream supports updates or deletes.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Database access.
 * - internal/domain: Log models and the actor tagged union.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

// InsertTransactionLog appends one transaction-log row outside of any caller
// transaction. Reconciliation paths use the in-transaction variant instead.
func (r *PostgresRepository) InsertTransactionLog(ctx context.Context, entry *domain.TransactionLog) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction log metadata: %w", err)
	}
	query := `
		INSERT INTO transaction_logs (id, payment_id, refund_id, student_id, school_id, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query, entry.ID, entry.PaymentID, entry.RefundID, entry.StudentID, entry.SchoolID, entry.Action, metadata)
	return err
}

// CountTransactionLogs counts rows matching the filter. Zero-valued filter
// fields are not applied. This backs the trailing-window velocity scorer.
func (r *PostgresRepository) CountTransactionLogs(ctx context.Context, filter TransactionLogFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM transaction_logs WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argPos)
		args = append(args, filter.Action)
		argPos++
	}
	if filter.PaymentID != nil {
		query += fmt.Sprintf(" AND payment_id = $%d", argPos)
		args = append(args, *filter.PaymentID)
		argPos++
	}
	if filter.RefundID != nil {
		query += fmt.Sprintf(" AND refund_id = $%d", argPos)
		args = append(args, *filter.RefundID)
		argPos++
	}
	if filter.StudentID != nil {
		query += fmt.Sprintf(" AND student_id = $%d", argPos)
		args = append(args, *filter.StudentID)
		argPos++
	}
	if filter.SchoolID != nil {
		query += fmt.Sprintf(" AND school_id = $%d", argPos)
		args = append(args, *filter.SchoolID)
		argPos++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, filter.Since)
		argPos++
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// InsertAuditLog appends one audit-log row. Student and admin actors are
// verified to exist before the insert so the compliance record never points at
// a phantom actor.
func (r *PostgresRepository) InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	switch entry.Actor.Type {
	case domain.ActorTypeStudent:
		if _, err := r.FindStudentByID(ctx, *entry.Actor.ID); err != nil {
			return fmt.Errorf("audit actor: %w", err)
		}
	case domain.ActorTypeAdmin:
		if _, err := r.FindSchoolByID(ctx, *entry.Actor.ID); err != nil {
			return fmt.Errorf("audit actor: %w", err)
		}
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit log metadata: %w", err)
	}
	var extra []byte
	if len(entry.Extra) > 0 {
		extra, err = json.Marshal(entry.Extra)
		if err != nil {
			return fmt.Errorf("marshal audit log extra: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, actor_type, actor_id, metadata, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.Actor.Type,
		entry.Actor.ID,
		metadata,
		extra,
	)
	return err
}

// ListAuditLogs retrieves a school's audit history: rows the school's admin
// produced, rows produced by the school's own students, and system rows.
func (r *PostgresRepository) ListAuditLogs(ctx context.Context, schoolID uuid.UUID, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var conditions []string
	args := []interface{}{schoolID}
	argPos := 2

	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("al.entity_type = $%d", argPos))
		args = append(args, filter.EntityType)
		argPos++
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("al.action = $%d", argPos))
		args = append(args, filter.Action)
		argPos++
	}
	if filter.ActorType != "" {
		conditions = append(conditions, fmt.Sprintf("al.actor_type = $%d", argPos))
		args = append(args, filter.ActorType)
		argPos++
	}

	query := `
		SELECT al.id, al.entity_type, al.entity_id, al.action, al.actor_type, al.actor_id,
		       al.metadata, al.extra, al.created_at
		FROM audit_logs al
		WHERE (
			(al.actor_type = 'admin' AND al.actor_id = $1)
			OR (al.actor_type = 'student' AND al.actor_id IN (SELECT id FROM students WHERE school_id = $1))
			OR al.actor_type = 'system'
		)
	`
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY al.created_at DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var (
			entry    domain.AuditLog
			metadata []byte
			extra    []byte
		)
		err := rows.Scan(
			&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action,
			&entry.Actor.Type, &entry.Actor.ID, &metadata, &extra, &entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit log metadata: %w", err)
			}
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &entry.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal audit log extra: %w", err)
			}
		}
		logs = append(logs, entry)
	}

	return logs, nil
}
