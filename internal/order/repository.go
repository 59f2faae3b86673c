package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-be/internal/logger"
	"storefront-be/internal/pricing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetProducts(ctx context.Context, ids []uint) (map[uint]Product, error)
	GetShippingOption(ctx context.Context, id uint) (*pricing.ShippingOption, error)
	ListShippingOptions(ctx context.Context, enabledOnly bool) ([]pricing.ShippingOption, error)

	// CreateOrderTx persists the order, its items and the first history
	// entry atomically. A taken order number yields errOrderNumberTaken.
	CreateOrderTx(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)

	// TransitionTx locks the order, checks the move against the status
	// machine, then updates it and appends history in one transaction.
	TransitionTx(ctx context.Context, orderID uuid.UUID, to Status, actor *uint, note *string) (*Transition, error)
	// ListHistory returns entries newest first.
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)
}

var errOrderNumberTaken = errors.New("order number already exists")

const orderNumberConstraint = "orders_order_number_key"

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetProducts(ctx context.Context, ids []uint) (map[uint]Product, error) {
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, active
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

const shippingColumns = `id, name, base_price, free_shipping_threshold, discount_threshold, discount_amount, enabled, sort_order`

func scanShippingOption(row interface{ Scan(...any) error }) (*pricing.ShippingOption, error) {
	var (
		o                      pricing.ShippingOption
		discThresh, discAmount sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.Name, &o.BasePrice, &o.FreeShippingThreshold, &discThresh, &discAmount, &o.Enabled, &o.SortOrder)
	if err != nil {
		return nil, err
	}
	if discThresh.Valid && discAmount.Valid {
		o.Discount = &pricing.ShippingDiscount{Threshold: discThresh.Int64, Amount: discAmount.Int64}
	}
	return &o, nil
}

func (r *repository) GetShippingOption(ctx context.Context, id uint) (*pricing.ShippingOption, error) {
	o, err := scanShippingOption(r.db.QueryRowContext(ctx,
		`SELECT `+shippingColumns+` FROM shipping_options WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShippingNotFound
	}
	return o, err
}

func (r *repository) ListShippingOptions(ctx context.Context, enabledOnly bool) ([]pricing.ShippingOption, error) {
	q := `SELECT ` + shippingColumns + ` FROM shipping_options`
	if enabledOnly {
		q += ` WHERE enabled = TRUE`
	}
	q += ` ORDER BY sort_order ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.ShippingOption
	for rows.Next() {
		o, err := scanShippingOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_number", o.OrderNumber),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Insert order
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id,
			subtotal, shipping_fee, total,
			status, shipping_option_id, payment_method_id, payment_method_type, payment_status,
			shipping_name, shipping_phone, shipping_line1, shipping_line2, shipping_area, shipping_city,
			notes, utm_source, utm_medium, utm_campaign
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING created_at, updated_at
	`,
		o.ID, o.OrderNumber, o.UserID,
		o.Subtotal, o.ShippingFee, o.Total,
		o.Status, o.ShippingOptionID, o.PaymentMethodID, o.PaymentMethodType, o.PaymentStatus,
		o.ShippingAddress.Name, o.ShippingAddress.Phone, o.ShippingAddress.Line1,
		o.ShippingAddress.Line2, o.ShippingAddress.Area, o.ShippingAddress.City,
		o.Notes, o.Attribution.Source, o.Attribution.Medium, o.Attribution.Campaign,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == orderNumberConstraint {
			log.Warn("order number taken")
			return errOrderNumberTaken
		}
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	// 2. Insert items
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, product_name,
				unit_price, quantity, size, color, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`,
			o.ID, item.ProductID, item.ProductName,
			item.UnitPrice, item.Quantity, item.Size, item.Color, item.Subtotal,
		).Scan(&item.ID)
		if err != nil {
			log.Error("failed to insert order item", zap.Uint("product_id", item.ProductID), zap.Error(err))
			return err
		}
	}

	// 3. Initial history entry
	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, note)
		VALUES ($1, NULL, $2, $3, NULL)
	`, o.ID, o.Status, o.UserID)
	if err != nil {
		log.Error("failed to insert initial history", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, user_id, subtotal, shipping_fee, total,
			status, shipping_option_id, payment_method_id, payment_method_type, payment_status,
			shipping_name, shipping_phone, shipping_line1, shipping_line2, shipping_area, shipping_city,
			notes, utm_source, utm_medium, utm_campaign, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Subtotal, &o.ShippingFee, &o.Total,
		&o.Status, &o.ShippingOptionID, &o.PaymentMethodID, &o.PaymentMethodType, &o.PaymentStatus,
		&o.ShippingAddress.Name, &o.ShippingAddress.Phone, &o.ShippingAddress.Line1,
		&o.ShippingAddress.Line2, &o.ShippingAddress.Area, &o.ShippingAddress.City,
		&o.Notes, &o.Attribution.Source, &o.Attribution.Medium, &o.Attribution.Campaign,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, size, color, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.UnitPrice, &it.Quantity, &it.Size, &it.Color, &it.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) TransitionTx(
	ctx context.Context,
	orderID uuid.UUID,
	to Status,
	actor *uint,
	note *string,
) (*Transition, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "TransitionTx"),
		zap.String("order_id", orderID.String()),
		zap.String("to", string(to)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		from Status
		t    Transition
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, order_number, shipping_phone
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&from, &t.OrderNumber, &t.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to lock order", zap.Error(err))
		return nil, err
	}

	if !CanTransition(from, to) {
		return nil, ErrIllegalTransition.Wrapf("%s to %s", from, to)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, orderID, to)
	if err != nil {
		log.Error("failed to update status", zap.Error(err))
		return nil, err
	}

	t.Entry = HistoryEntry{OrderID: orderID, FromStatus: &from, ToStatus: to, Actor: actor, Note: note}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, orderID, from, to, actor, note).Scan(&t.Entry.ID, &t.Entry.CreatedAt)
	if err != nil {
		log.Error("failed to append history", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &t, nil
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, actor_id, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			h    HistoryEntry
			from sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &from, &h.ToStatus, &h.Actor, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		if from.Valid {
			s := Status(from.String)
			h.FromStatus = &s
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
