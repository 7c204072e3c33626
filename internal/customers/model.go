package customers

// Customer is a business customer record.
type Customer struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Email  *string  `json:"email"`
	Phone  *string  `json:"phone"`
	Images []string `json:"images"`
}

// Image is an uploaded customer picture.
type Image struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	ImageURL   string `json:"image_url"`
}
