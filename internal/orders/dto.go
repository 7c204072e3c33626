package orders

type CreateOrderRequest struct {
	CustomerID int64                `json:"customer_id" validate:"required,gt=0"`
	Details    []OrderDetailRequest `json:"details" validate:"required,min=1,max=100,dive"`
}

type OrderDetailRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0,max=100000"`
}

type ListOrdersRequest struct {
	CustomerID int64
	Limit      int
	Offset     int
}
