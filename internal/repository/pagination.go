package repository

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// PageRequest is a 1-based page number and a page size.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds: a missing or non-positive limit
// becomes DefaultPageSize, anything above MaxPageSize is clamped, and pages
// below one become the first page.
func (p PageRequest) Normalize() PageRequest {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	} else if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	return p
}

// PageInfo describes where a page sits within the full result set.
type PageInfo struct {
	Page        int
	Limit       int
	Total       int64
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}

// Page is one page of items plus its position.
type Page[T any] struct {
	Items []T
	PageInfo
}

// Paginate resolves req against total rows. A page past the end is clamped to
// the last page; an empty set still has one (empty) page.
func Paginate(total int64, req PageRequest) (PageInfo, int) {
	req = req.Normalize()

	totalPages := 1
	if total > 0 {
		totalPages = int((total + int64(req.Limit) - 1) / int64(req.Limit))
	}
	page := req.Page
	if page > totalPages {
		page = totalPages
	}

	info := PageInfo{
		Page:        page,
		Limit:       req.Limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
	return info, (page - 1) * req.Limit
}
