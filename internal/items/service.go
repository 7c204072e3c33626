package items

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/shared"
)

const imagePrefix = "items"

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

func (s *Service) Create(ctx context.Context, req CreateItemRequest) (*Item, error) {
	if req.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", shared.ErrValidation)
	}
	if req.Price > shared.MaxAmount {
		return nil, fmt.Errorf("%w: price exceeds %s", shared.ErrValidation, shared.MaxAmount)
	}
	item := Item{Name: strings.TrimSpace(req.Name), Price: req.Price}
	if req.Sku != nil {
		if sku := strings.TrimSpace(*req.Sku); sku != "" {
			item.Sku = &sku
		}
	}
	var created *Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		if created, err = repo.Create(ctx, item); err != nil {
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
		return nil, fmt.Errorf("items: create: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListItemsRequest) ([]Item, error) {
	page := shared.NewPage(req.Limit, req.Offset)
	req.Limit, req.Offset = page.Limit, page.Offset
	req.Search = strings.TrimSpace(req.Search)
	return s.repo.List(ctx, req)
}

// UploadImages stores files under items/{id}/ then records them in one transaction.
func (s *Service) UploadImages(ctx context.Context, id int64, uploads []storage.Upload) ([]Image, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(uploads))
	for _, up := range uploads {
		loc, err := s.objects.Put(ctx, storage.ObjectKey(imagePrefix, id, up.Filename), up.Body, up.Size, up.ContentType)
		if err != nil {
			return nil, fmt.Errorf("items: upload %s: %w", up.Filename, err)
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
		return nil, fmt.Errorf("items: record images: %w", err)
	}
	s.logger.Info("item images uploaded", slog.Int64("item_id", id), slog.Int("count", len(images)))
	return images, nil
}
