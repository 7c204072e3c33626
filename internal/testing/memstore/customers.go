package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/bizgate/bizgate/internal/customers"
	"github.com/bizgate/bizgate/internal/shared"
)

// CustomerRepo is an in-memory customers.Repository. Transactions are not isolated.
type CustomerRepo struct {
	mu     sync.Mutex
	rows   []customers.Customer
	images []customers.Image
}

// Customers returns an empty customer repository.
func Customers() *CustomerRepo { return &CustomerRepo{} }

func (r *CustomerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	return fn(ctx, r)
}

func (r *CustomerRepo) Get(_ context.Context, id int64) (*customers.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.ID != id {
			continue
		}
		c.Images = []string{}
		for _, img := range r.images {
			if img.CustomerID == id {
				c.Images = append(c.Images, img.ImageURL)
			}
		}
		return &c, nil
	}
	return nil, shared.ErrNotFound
}

func (r *CustomerRepo) List(_ context.Context, req customers.ListCustomersRequest) ([]customers.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []customers.Customer{}
	for _, c := range r.rows {
		if req.Search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(req.Search)) {
			out = append(out, c)
		}
	}
	if req.Offset >= len(out) {
		return []customers.Customer{}, nil
	}
	out = out[req.Offset:]
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (r *CustomerRepo) Create(_ context.Context, c customers.Customer) (*customers.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if c.Email != nil && existing.Email != nil && *c.Email == *existing.Email {
			return nil, shared.ErrEmailExists
		}
	}
	c.ID = int64(len(r.rows) + 1)
	c.Images = []string{}
	r.rows = append(r.rows, c)
	return &c, nil
}

func (r *CustomerRepo) AddImage(_ context.Context, customerID int64, url string) (customers.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := customers.Image{ID: int64(len(r.images) + 1), CustomerID: customerID, ImageURL: url}
	r.images = append(r.images, img)
	return img, nil
}
