package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	ListMethods(ctx context.Context, enabledOnly bool) ([]Method, error)
	GetMethod(ctx context.Context, id uint) (*Method, error)
	GetCharge(ctx context.Context, orderID uuid.UUID) (*Charge, error)

	// GetOpenSession returns the pending session of an order, or nil.
	GetOpenSession(ctx context.Context, orderID uuid.UUID) (*Session, error)
	// CountSessions returns how many sessions the order has ever opened.
	CountSessions(ctx context.Context, orderID uuid.UUID) (int, error)
	// CreateSession inserts a pending session. It returns ErrSessionOpen
	// when the order already has one.
	CreateSession(ctx context.Context, s *Session) error
	AttachProviderSession(ctx context.Context, sessionID int64, providerRef, redirectURL string) error
	AbandonSession(ctx context.Context, sessionID int64, reason string) error
	GetSessionByRef(ctx context.Context, provider MethodType, ref string) (*Session, error)
	// ResolveSession closes a pending session and settles the order's
	// payment status in one transaction.
	ResolveSession(ctx context.Context, s *Session, status Status, transactionID, reason string) (ResolveResult, error)
	ResolveManual(ctx context.Context, orderID uuid.UUID, status Status, reference string, actor *uint) (bool, error)

	SaveCallback(ctx context.Context, cb *Callback) (int64, error)
	MarkCallbackProcessed(ctx context.Context, callbackID int64) error
	MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error
}

// ResolveResult reports which of the two conditional writes took effect.
type ResolveResult struct {
	SessionResolved bool
	OrderSettled    bool
}

var errSessionOpen = errors.New("order already has an open payment session")

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const methodColumns = `id, type, name, enabled, instructions, account_number, sort_order`

func scanMethod(row interface{ Scan(...any) error }) (*Method, error) {
	var m Method
	err := row.Scan(&m.ID, &m.Type, &m.Name, &m.Enabled, &m.Instructions, &m.AccountNumber, &m.SortOrder)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) ListMethods(ctx context.Context, enabledOnly bool) ([]Method, error) {
	q := `SELECT ` + methodColumns + ` FROM payment_methods`
	if enabledOnly {
		q += ` WHERE enabled = TRUE`
	}
	q += ` ORDER BY sort_order ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Method
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *repository) GetMethod(ctx context.Context, id uint) (*Method, error) {
	m, err := scanMethod(r.db.QueryRowContext(ctx,
		`SELECT `+methodColumns+` FROM payment_methods WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMethodNotFound
	}
	return m, err
}

func (r *repository) GetCharge(ctx context.Context, orderID uuid.UUID) (*Charge, error) {
	// The method type is the snapshot taken at placement, not the
	// method's current configuration.
	const q = `
		SELECT o.id, o.order_number, o.user_id, o.total, o.payment_status, o.shipping_name, o.shipping_phone,
			pm.id, o.payment_method_type, pm.name, pm.enabled, pm.instructions, pm.account_number, pm.sort_order
		FROM orders o
		JOIN payment_methods pm ON pm.id = o.payment_method_id
		WHERE o.id = $1
	`

	var c Charge
	err := r.db.QueryRowContext(ctx, q, orderID).Scan(
		&c.OrderID, &c.OrderNumber, &c.UserID, &c.Amount, &c.PaymentStatus, &c.BuyerName, &c.BuyerPhone,
		&c.Method.ID, &c.Method.Type, &c.Method.Name, &c.Method.Enabled,
		&c.Method.Instructions, &c.Method.AccountNumber, &c.Method.SortOrder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const sessionColumns = `id, order_id, provider, idempotency_key, provider_ref, redirect_url, amount,
	status, transaction_id, failure_reason, created_at, resolved_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.OrderID, &s.Provider, &s.IdempotencyKey, &s.ProviderRef, &s.RedirectURL, &s.Amount,
		&s.Status, &s.TransactionID, &s.FailureReason, &s.CreatedAt, &s.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) GetOpenSession(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE order_id = $1 AND status = 'pending'`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *repository) CountSessions(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_sessions WHERE order_id = $1`, orderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count payment sessions: %w", err)
	}
	return n, nil
}

func (r *repository) CreateSession(ctx context.Context, s *Session) error {
	// payment_sessions_one_open is a partial unique index on order_id
	// for pending rows, which serialises concurrent initiations.
	const q = `
		INSERT INTO payment_sessions (order_id, provider, idempotency_key, amount, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, q, s.OrderID, s.Provider, s.IdempotencyKey, s.Amount).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errSessionOpen
		}
		return err
	}
	s.Status = StatusPending
	return nil
}

func (r *repository) AttachProviderSession(ctx context.Context, sessionID int64, providerRef, redirectURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_sessions
		SET provider_ref = $2, redirect_url = $3
		WHERE id = $1
	`, sessionID, providerRef, redirectURL)
	return err
}

func (r *repository) AbandonSession(ctx context.Context, sessionID int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_sessions
		SET status = 'failed', failure_reason = $2, resolved_at = now()
		WHERE id = $1 AND status = 'pending'
	`, sessionID, reason)
	return err
}

func (r *repository) GetSessionByRef(ctx context.Context, provider MethodType, ref string) (*Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE provider = $1 AND provider_ref = $2`, provider, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

func (r *repository) ResolveSession(
	ctx context.Context,
	s *Session,
	status Status,
	transactionID string,
	reason string,
) (ResolveResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ResolveSession"),
		zap.Int64("session_id", s.ID),
	)

	var res ResolveResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	sessRes, err := tx.ExecContext(ctx, `
		UPDATE payment_sessions
		SET status = $2, transaction_id = NULLIF($3, ''), failure_reason = NULLIF($4, ''), resolved_at = now()
		WHERE id = $1 AND status = 'pending'
	`, s.ID, status, transactionID, reason)
	if err != nil {
		log.Error("failed to resolve session", zap.Error(err))
		return res, err
	}
	n, err := sessRes.RowsAffected()
	if err != nil {
		return res, err
	}
	if n == 0 {
		return res, nil
	}
	res.SessionResolved = true

	orderRes, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, payment_reference = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
	`, s.OrderID, status, transactionID)
	if err != nil {
		log.Error("failed to settle order payment", zap.Error(err))
		return res, err
	}
	n, err = orderRes.RowsAffected()
	if err != nil {
		return res, err
	}
	res.OrderSettled = n > 0

	if err := tx.Commit(); err != nil {
		return ResolveResult{}, fmt.Errorf("commit resolve session: %w", err)
	}
	return res, nil
}

func (r *repository) ResolveManual(ctx context.Context, orderID uuid.UUID, status Status, reference string, actor *uint) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, payment_reference = NULLIF($3, ''), payment_resolved_by = $4, updated_at = now()
		WHERE id = $1 AND payment_status = 'pending'
	`, orderID, status, reference, actor)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) SaveCallback(ctx context.Context, cb *Callback) (int64, error) {
	const q = `
	INSERT INTO payment_callbacks (
		provider,
		session_ref,
		outcome,
		payload
	)
	VALUES ($1, $2, $3, $4)
	RETURNING id;
	`

	payload := cb.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var id int64
	err := r.db.QueryRowContext(ctx, q, cb.Provider, cb.SessionRef, cb.Outcome, []byte(payload)).Scan(&id)
	return id, err
}

func (r *repository) MarkCallbackProcessed(
	ctx context.Context,
	callbackID int64,
) error {

	const q = `
	UPDATE payment_callbacks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID)
	return err
}

func (r *repository) MarkCallbackFailed(
	ctx context.Context,
	callbackID int64,
	reason string,
) error {

	const q = `
	UPDATE payment_callbacks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID, reason)
	return err
}
