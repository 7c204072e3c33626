package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated covers missing, invalid or expired tokens and unknown subjects.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermissionNotConfigured is returned when no rule exists for an endpoint.
	ErrPermissionNotConfigured = errors.New("permission not configured")
	// ErrForbidden indicates the caller is authenticated but not allowed.
	ErrForbidden = errors.New("access denied")
	// ErrDuplicateEndpoint occurs when a permission rule already uses the endpoint name.
	ErrDuplicateEndpoint = errors.New("permission for this endpoint already exists")
	// ErrUsernameExists occurs on duplicate usernames.
	ErrUsernameExists = errors.New("username already exists")
	// ErrEmailExists occurs on duplicate emails.
	ErrEmailExists = errors.New("email already exists")
	// ErrSkuExists occurs on duplicate item SKUs.
	ErrSkuExists = errors.New("sku already exists")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// UserSafeMessage returns a message that can be shown to API clients.
func UserSafeMessage(err error) string {
	for _, known := range []error{
		ErrNotFound, ErrInvalidCredentials, ErrUnauthenticated, ErrPermissionNotConfigured, ErrForbidden,
		ErrDuplicateEndpoint, ErrUsernameExists, ErrEmailExists, ErrSkuExists,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, ErrValidation) {
		return err.Error()
	}
	return "internal error"
}
