package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/shared"
)

const imagePrefix = "customers"

type Service struct {
	repo    Repository
	objects storage.ObjectStore
	logger  *slog.Logger
}

func NewService(repo Repository, objects storage.ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, objects: objects, logger: logger}
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	customer := Customer{
		Name:  strings.TrimSpace(req.Name),
		Email: trimmed(req.Email),
		Phone: trimmed(req.Phone),
	}
	var created *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		created, err = repo.Create(ctx, customer)
		if err != nil {
			return err
		}
		for _, img := range req.Images {
			added, err := repo.AddImage(ctx, created.ID, strings.TrimSpace(img.ImageURL))
			if err != nil {
				return err
			}
			created.Images = append(created.Images, added.ImageURL)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("customers: create: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, error) {
	page := shared.NewPage(req.Limit, req.Offset)
	req.Limit, req.Offset = page.Limit, page.Offset
	req.Search = strings.TrimSpace(req.Search)
	return s.repo.List(ctx, req)
}

// UploadImages stores each file under customers/{id}/ and records its location.
func (s *Service) UploadImages(ctx context.Context, id int64, uploads []storage.Upload) ([]Image, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(uploads))
	for _, up := range uploads {
		key := storage.ObjectKey(imagePrefix, id, up.Filename)
		loc, err := s.objects.Put(ctx, key, up.Body, up.Size, up.ContentType)
		if err != nil {
			return nil, fmt.Errorf("customers: upload %s: %w", up.Filename, err)
		}
		locations = append(locations, loc)
	}
	var images []Image
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		images = make([]Image, 0, len(locations))
		for _, loc := range locations {
			img, err := repo.AddImage(ctx, id, loc)
			if err != nil {
				return err
			}
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("customers: record images: %w", err)
	}
	s.logger.Info("customer images uploaded", slog.Int64("customer_id", id), slog.Int("count", len(images)))
	return images, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
