package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizgate/bizgate/internal/platform/db"
	"github.com/bizgate/bizgate/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	CustomerExists(ctx context.Context, id int64) (bool, error)
	// ItemPrice returns the current price of an item and locks the row until the transaction ends.
	ItemPrice(ctx context.Context, itemID int64) (shared.Cents, error)
	CreateOrder(ctx context.Context, order Order) (*Order, error)
	InsertDetail(ctx context.Context, detail Detail) (Detail, error)
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repository) ItemPrice(ctx context.Context, itemID int64) (shared.Cents, error) {
	var cents int64
	err := r.db.QueryRow(ctx, `SELECT ROUND(price * 100)::BIGINT FROM items WHERE id = $1 FOR SHARE`, itemID).Scan(&cents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return shared.Cents(cents), nil
}

func (r *repository) CreateOrder(ctx context.Context, order Order) (*Order, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO orders (customer_id, status, total)
VALUES ($1, $2, $3::NUMERIC / 100)
RETURNING id, created_at`, order.CustomerID, order.Status, int64(order.Total)).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

func (r *repository) InsertDetail(ctx context.Context, detail Detail) (Detail, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO order_details (order_id, item_id, quantity, unit_price)
VALUES ($1, $2, $3, $4::NUMERIC / 100)
RETURNING id`, detail.OrderID, detail.ItemID, detail.Quantity, int64(detail.UnitPrice)).Scan(&detail.ID)
	if err != nil {
		return Detail{}, fmt.Errorf("insert order detail: %w", err)
	}
	return detail, nil
}

const orderColumns = `id, customer_id, status, ROUND(total * 100)::BIGINT, created_at`

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, order_id, item_id, quantity, ROUND(unit_price * 100)::BIGINT
FROM order_details WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	order.Details = []Detail{}
	for rows.Next() {
		var (
			d     Detail
			cents int64
		)
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ItemID, &d.Quantity, &cents); err != nil {
			return nil, err
		}
		d.UnitPrice = shared.Cents(cents)
		order.Details = append(order.Details, d)
	}
	return order, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if req.CustomerID > 0 {
		args = append(args, req.CustomerID)
		query += ` WHERE customer_id = $1`
	}
	args = append(args, req.Limit, req.Offset)
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o     Order
		cents int64
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &cents, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Total = shared.Cents(cents)
	return &o, nil
}
