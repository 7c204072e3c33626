package shared

// Endpoint names of permission-guarded business routes.
const (
	EndpointCreateCustomer       = "create-customer"
	EndpointCustomerUploadImages = "customer-upload-images"
	EndpointCreateItem           = "create-item"
	EndpointItemUploadImages     = "item-upload-images"
	EndpointCreateOrder          = "create-order"
)

// CoreEndpoints lists every endpoint name a route guards with a permission rule.
func CoreEndpoints() []string {
	return []string{
		EndpointCreateCustomer,
		EndpointCustomerUploadImages,
		EndpointCreateItem,
		EndpointItemUploadImages,
		EndpointCreateOrder,
	}
}
