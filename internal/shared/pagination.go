package shared

// List paging bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// NewPage applies the default size, caps the limit and floors the offset at zero.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
