/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL required for memberships, the order ledger, and the
 * member-code sequence.
 *
 * Schema assumptions enforced by migrations:
 * - partial unique index on memberships(user_id) WHERE status = 'active'
 * - unique index on memberships(member_code) WHERE member_code IS NOT NULL
 * - sequence member_code_seq for sequential code allocation
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Soundar1309/ispb-membership-service/internal/domain"
)

var (
	ErrMembershipNotFound     = errors.New("membership not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicateMemberCode    = errors.New("member code already in use")
	ErrActiveMembershipExists = errors.New("user already has an active membership")
)

const pgUniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const membershipColumns = `
	id, user_id, membership_type, application_status, payment_status, status,
	amount, currency, valid_from, valid_until, member_code, is_manual,
	admin_review_notes, application_documents, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*domain.MembershipRecord, error) {
	var rec domain.MembershipRecord
	var docs []byte
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.MembershipType,
		&rec.ApplicationStatus,
		&rec.PaymentStatus,
		&rec.Status,
		&rec.Amount,
		&rec.Currency,
		&rec.ValidFrom,
		&rec.ValidUntil,
		&rec.MemberCode,
		&rec.IsManual,
		&rec.AdminReviewNotes,
		&docs,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &rec.ApplicationDocuments); err != nil {
			return nil, fmt.Errorf("failed to decode application documents: %w", err)
		}
	}
	return &rec, nil
}

func isUniqueViolation(err error, constraintFragment string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return strings.Contains(pgErr.ConstraintName, constraintFragment)
}

// CreateMembership inserts a new membership record. A user with an active
// record hits the partial unique index and gets ErrActiveMembershipExists.
func (r *PostgresRepository) CreateMembership(ctx context.Context, rec *domain.MembershipRecord) error {
	docs, err := json.Marshal(rec.ApplicationDocuments)
	if err != nil {
		return fmt.Errorf("failed to encode application documents: %w", err)
	}
	query := `
		INSERT INTO memberships (
			id, user_id, membership_type, application_status, payment_status, status,
			amount, currency, valid_from, valid_until, member_code, is_manual,
			admin_review_notes, application_documents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		rec.ID, rec.UserID, rec.MembershipType, rec.ApplicationStatus, rec.PaymentStatus,
		rec.Status, rec.Amount, rec.Currency, rec.ValidFrom, rec.ValidUntil,
		rec.MemberCode, rec.IsManual, rec.AdminReviewNotes, docs,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "member_code") {
			return ErrDuplicateMemberCode
		}
		if isUniqueViolation(err, "user_id") {
			return ErrActiveMembershipExists
		}
		return err
	}
	return nil
}

// FindMembershipByID retrieves a membership record by its primary key.
func (r *PostgresRepository) FindMembershipByID(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// FindLiveMembershipByUserID returns the user's pending or active record.
func (r *PostgresRepository) FindLiveMembershipByUserID(ctx context.Context, userID uuid.UUID) (*domain.MembershipRecord, error) {
	query := `
		SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND status IN ('pending', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`
	rec, err := scanMembership(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListMemberships returns records matching the admin filter options.
func (r *PostgresRepository) ListMemberships(ctx context.Context, opts domain.MembershipListOptions) ([]domain.MembershipRecord, error) {
	var conditions []string
	var args []any

	addFilter := func(column string, value string) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if opts.Status != "" {
		addFilter("status", string(opts.Status))
	}
	if opts.ApplicationStatus != "" {
		addFilter("application_status", string(opts.ApplicationStatus))
	}
	if opts.MembershipType != "" {
		addFilter("membership_type", string(opts.MembershipType))
	}

	query := `SELECT ` + membershipColumns + ` FROM memberships`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MembershipRecord
	for rows.Next() {
		rec, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ApplyReviewDecision performs the guarded review transition. The WHERE clause
// serializes concurrent admin decisions: the loser matches zero rows.
func (r *PostgresRepository) ApplyReviewDecision(ctx context.Context, id uuid.UUID, approved bool, notes *string) (*domain.MembershipRecord, error) {
	var query string
	if approved {
		query = `
			UPDATE memberships
			SET application_status = 'approved',
				admin_review_notes = COALESCE($2, admin_review_notes),
				updated_at = NOW()
			WHERE id = $1 AND application_status = 'submitted'
			RETURNING ` + membershipColumns
	} else {
		query = `
			UPDATE memberships
			SET application_status = 'rejected',
				status = 'cancelled',
				payment_status = 'cancelled',
				admin_review_notes = COALESCE($2, admin_review_notes),
				updated_at = NOW()
			WHERE id = $1 AND application_status = 'submitted'
			RETURNING ` + membershipColumns
	}
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ActivateMembership performs the guarded transition into the active, paid state.
func (r *PostgresRepository) ActivateMembership(ctx context.Context, id uuid.UUID, params ActivateMembershipParams) (*domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET payment_status = $2,
			status = 'active',
			valid_from = $3,
			valid_until = $4,
			is_manual = is_manual OR $5,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending'
		RETURNING ` + membershipColumns
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id, params.PaymentStatus, params.ValidFrom, params.ValidUntil, params.IsManual))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		if isUniqueViolation(err, "user_id") {
			return nil, ErrActiveMembershipExists
		}
		return nil, err
	}
	return rec, nil
}

// AssignMemberCode sets the member code exactly once per record. The unique
// index turns concurrent custom-code races into ErrDuplicateMemberCode for the
// loser, leaving its record unchanged.
func (r *PostgresRepository) AssignMemberCode(ctx context.Context, id uuid.UUID, code string) (*domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET member_code = $2, updated_at = NOW()
		WHERE id = $1 AND member_code IS NULL
		RETURNING ` + membershipColumns
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		if isUniqueViolation(err, "member_code") {
			return nil, ErrDuplicateMemberCode
		}
		return nil, err
	}
	return rec, nil
}

// UpdateMembershipNotes updates the free-text review notes at any lifecycle state.
func (r *PostgresRepository) UpdateMembershipNotes(ctx context.Context, id uuid.UUID, notes string) (*domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET admin_review_notes = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + membershipColumns
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id, notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// UpdateMembershipTerms edits amount/validity while the record is not active.
// The WHERE clause also refuses any edit whose resulting window would be
// inverted, so a concurrent date edit cannot slip past the service-level check.
func (r *PostgresRepository) UpdateMembershipTerms(ctx context.Context, id uuid.UUID, params UpdateMembershipTermsParams) (*domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET amount = COALESCE($2, amount),
			valid_from = COALESCE($3, valid_from),
			valid_until = COALESCE($4, valid_until),
			admin_review_notes = COALESCE($5, admin_review_notes),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'active'
			AND (COALESCE($4, valid_until) IS NULL
				OR COALESCE($3, valid_from) IS NULL
				OR COALESCE($4, valid_until) >= COALESCE($3, valid_from))
		RETURNING ` + membershipColumns
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id, params.Amount, params.ValidFrom, params.ValidUntil, params.Notes))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// CancelMembership performs the guarded active -> cancelled transition.
func (r *PostgresRepository) CancelMembership(ctx context.Context, id uuid.UUID) (*domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + membershipColumns
	rec, err := scanMembership(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ExpireMemberships transitions lapsed active records in one statement, so a
// second run in the same day matches nothing and is a clean no-op.
func (r *PostgresRepository) ExpireMemberships(ctx context.Context, now time.Time) ([]domain.MembershipRecord, error) {
	query := `
		UPDATE memberships
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND valid_until IS NOT NULL AND valid_until < $1
		RETURNING ` + membershipColumns
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []domain.MembershipRecord
	for rows.Next() {
		rec, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *rec)
	}
	return expired, rows.Err()
}

// DeleteMembership removes a record and its ledger entries in one transaction.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE membership_id = $1`, id); err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, membership_id, user_id, amount, currency, status,
	gateway_order_id, gateway_payment_id, invoice_url, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.OrderRecord, error) {
	var order domain.OrderRecord
	err := row.Scan(
		&order.ID,
		&order.MembershipID,
		&order.UserID,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.GatewayOrderID,
		&order.GatewayPaymentID,
		&order.InvoiceURL,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrder inserts a new ledger entry for a payment attempt.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.OrderRecord) error {
	query := `
		INSERT INTO orders (id, membership_id, user_id, amount, currency, status, gateway_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		order.ID, order.MembershipID, order.UserID, order.Amount,
		order.Currency, order.Status, order.GatewayOrderID,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// FindOrderByID retrieves a ledger entry by its primary key.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// FindOrderByGatewayOrderID resolves the ledger entry a gateway callback refers to.
func (r *PostgresRepository) FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE gateway_order_id = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, gatewayOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListOrdersByMembershipID returns the ledger entries for one membership.
func (r *PostgresRepository) ListOrdersByMembershipID(ctx context.Context, membershipID uuid.UUID) ([]domain.OrderRecord, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE membership_id = $1 ORDER BY created_at DESC`, membershipID)
}

// ListOrdersByUserID returns every ledger entry for a user.
func (r *PostgresRepository) ListOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]domain.OrderRecord, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRepository) listOrders(ctx context.Context, query string, arg any) ([]domain.OrderRecord, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// MarkOrderPaid performs the guarded pending -> paid transition.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (*domain.OrderRecord, error) {
	query := `
		UPDATE orders
		SET status = 'paid', gateway_payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + orderColumns
	order, err := scanOrder(r.db.QueryRow(ctx, query, id, gatewayPaymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// MarkOrderFailed records a failed payment attempt. The membership keeps
// payment_status = pending so the user can retry with a fresh order.
func (r *PostgresRepository) MarkOrderFailed(ctx context.Context, id uuid.UUID, gatewayPaymentID string) error {
	query := `
		UPDATE orders
		SET status = 'failed', gateway_payment_id = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, id, gatewayPaymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderInvoiceURL stores the generated invoice reference on the ledger entry.
func (r *PostgresRepository) SetOrderInvoiceURL(ctx context.Context, id uuid.UUID, url string) error {
	result, err := r.db.Exec(ctx, `UPDATE orders SET invoice_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// NextMemberCodeNumber draws the next value from the member-code sequence.
// Sequences never hand the same value to two callers, which is what makes
// concurrent allocation for different records safe.
func (r *PostgresRepository) NextMemberCodeNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('member_code_seq')`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
