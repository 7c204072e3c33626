package orders

import (
	"time"

	"github.com/bizgate/bizgate/internal/shared"
)

// StatusPending is the status of every newly placed order.
const StatusPending = "pending"

// Order is a customer order with its priced lines.
type Order struct {
	ID         int64        `json:"id"`
	CustomerID int64        `json:"customer_id"`
	Status     string       `json:"status"`
	Total      shared.Cents `json:"total"`
	CreatedAt  time.Time    `json:"created_at"`
	Details    []Detail     `json:"details"`
}

// Detail is one order line. UnitPrice is the item price when the order was placed.
type Detail struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"order_id"`
	ItemID    int64        `json:"item_id"`
	Quantity  int          `json:"quantity"`
	UnitPrice shared.Cents `json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (d Detail) LineTotal() shared.Cents {
	return shared.Cents(int64(d.Quantity) * int64(d.UnitPrice))
}
