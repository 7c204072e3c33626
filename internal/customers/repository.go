package customers

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
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, error)
	Create(ctx context.Context, customer Customer) (*Customer, error)
	AddImage(ctx context.Context, customerID int64, url string) (Image, error)
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

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, name, email, phone FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT image_url FROM customer_images WHERE customer_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	c.Images = []string{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		c.Images = append(c.Images, url)
	}
	return &c, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, error) {
	query := `SELECT id, name, email, phone FROM customers`
	args := []any{}
	if req.Search != "" {
		args = append(args, "%"+db.EscapeLike(req.Search)+"%")
		query += ` WHERE name ILIKE $1 OR email ILIKE $1`
	}
	args = append(args, req.Limit, req.Offset)
	query += ` ORDER BY id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Customer{}
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, customer Customer) (*Customer, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO customers (name, email, phone) VALUES ($1, $2, $3) RETURNING id`,
		customer.Name, customer.Email, customer.Phone).Scan(&customer.ID)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_customers_email" {
			return nil, shared.ErrEmailExists
		}
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	customer.Images = []string{}
	return &customer, nil
}

func (r *repository) AddImage(ctx context.Context, customerID int64, url string) (Image, error) {
	img := Image{CustomerID: customerID, ImageURL: url}
	err := r.db.QueryRow(ctx, `INSERT INTO customer_images (customer_id, image_url) VALUES ($1, $2) RETURNING id`,
		customerID, url).Scan(&img.ID)
	if err != nil {
		return Image{}, fmt.Errorf("insert customer image: %w", err)
	}
	return img, nil
}
