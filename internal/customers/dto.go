package customers

type CreateCustomerRequest struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	// Images are already-hosted pictures recorded alongside the customer.
	Images []ImageRequest `json:"images,omitempty" validate:"max=20,dive"`
}

type ImageRequest struct {
	ImageURL string `json:"image_url" validate:"required,url,max=500"`
}

type ListCustomersRequest struct {
	Search string
	Limit  int
	Offset int
}
