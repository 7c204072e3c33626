package items

import "github.com/bizgate/bizgate/internal/shared"

// Item is a sellable catalogue entry.
type Item struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Sku    *string      `json:"sku"`
	Price  shared.Cents `json:"price"`
	Images []string     `json:"images"`
}

// Image is an uploaded item picture.
type Image struct {
	ID       int64  `json:"id"`
	ItemID   int64  `json:"item_id"`
	ImageURL string `json:"image_url"`
}
