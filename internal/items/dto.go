package items

import "github.com/bizgate/bizgate/internal/shared"

type CreateItemRequest struct {
	Name   string         `json:"name" validate:"required,max=200"`
	Sku    *string        `json:"sku,omitempty" validate:"omitempty,max=64"`
	Price  shared.Cents   `json:"price" validate:"gte=0"`
	Images []ImageRequest `json:"images,omitempty" validate:"max=20,dive"`
}

type ImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,url,max=500"`
}

type ListItemsRequest struct {
	Search string
	Limit  int
	Offset int
}
