package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bizgate/bizgate/internal/shared"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create places a pending order. Unit prices are read from the items inside the
// same transaction that writes the order and its details.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Details) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one detail", shared.ErrValidation)
	}
	for _, d := range req.Details {
		if d.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for item %d", shared.ErrValidation, d.ItemID)
		}
	}

	var created *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		exists, err := repo.CustomerExists(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: customer %d does not exist", shared.ErrValidation, req.CustomerID)
		}

		details := make([]Detail, 0, len(req.Details))
		var total shared.Cents
		for _, line := range req.Details {
			price, err := repo.ItemPrice(ctx, line.ItemID)
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: item %d does not exist", shared.ErrValidation, line.ItemID)
			}
			if err != nil {
				return err
			}
			d := Detail{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: price}
			total += d.LineTotal()
			if total > shared.MaxAmount {
				return fmt.Errorf("%w: order total exceeds %s", shared.ErrValidation, shared.MaxAmount)
			}
			details = append(details, d)
		}

		order, err := repo.CreateOrder(ctx, Order{CustomerID: req.CustomerID, Status: StatusPending, Total: total})
		if err != nil {
			return err
		}
		order.Details = make([]Detail, 0, len(details))
		for _, d := range details {
			d.OrderID = order.ID
			saved, err := repo.InsertDetail(ctx, d)
			if err != nil {
				return err
			}
			order.Details = append(order.Details, saved)
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orders: create: %w", err)
	}
	s.logger.Info("order placed",
		slog.Int64("order_id", created.ID),
		slog.Int64("customer_id", created.CustomerID),
		slog.String("total", created.Total.String()))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, error) {
	page := shared.NewPage(req.Limit, req.Offset)
	req.Limit, req.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, req)
}
