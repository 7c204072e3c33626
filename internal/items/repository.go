package items

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
	Get(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context, req ListItemsRequest) ([]Item, error)
	Create(ctx context.Context, item Item) (*Item, error)
	AddImage(ctx context.Context, itemID int64, url string) (Image, error)
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

// Prices are NUMERIC(10,2) in the database and cents in Go.
const itemColumns = `id, name, sku, ROUND(price * 100)::BIGINT`

func (r *repository) Get(ctx context.Context, id int64) (*Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT image_url FROM item_images WHERE item_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	it.Images = []string{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		it.Images = append(it.Images, url)
	}
	return it, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListItemsRequest) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	args := []any{}
	if req.Search != "" {
		args = append(args, "%"+db.EscapeLike(req.Search)+"%")
		query += ` WHERE name ILIKE $1 OR sku ILIKE $1`
	}
	args = append(args, req.Limit, req.Offset)
	query += ` ORDER BY id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, item Item) (*Item, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO items (name, sku, price) VALUES ($1, $2, $3::NUMERIC / 100) RETURNING id`,
		item.Name, item.Sku, int64(item.Price)).Scan(&item.ID)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok && constraint == "uq_items_sku" {
			return nil, shared.ErrSkuExists
		}
		return nil, fmt.Errorf("insert item: %w", err)
	}
	item.Images = []string{}
	return &item, nil
}

func (r *repository) AddImage(ctx context.Context, itemID int64, url string) (Image, error) {
	img := Image{ItemID: itemID, ImageURL: url}
	err := r.db.QueryRow(ctx, `INSERT INTO item_images (item_id, image_url) VALUES ($1, $2) RETURNING id`,
		itemID, url).Scan(&img.ID)
	if err != nil {
		return Image{}, fmt.Errorf("insert item image: %w", err)
	}
	return img, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it    Item
		cents int64
	)
	if err := row.Scan(&it.ID, &it.Name, &it.Sku, &cents); err != nil {
		return nil, err
	}
	it.Price = shared.Cents(cents)
	return &it, nil
}
