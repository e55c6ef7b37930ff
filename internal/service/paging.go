package service

import "context"

const (
	defaultPerPage = 10
	maxPerPage     = 100

	// exportLimit caps the rows of one download.
	exportLimit = 10000
)

// pageBounds clamps listing parameters to sane values.
func pageBounds(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// collectPages walks a paged listing from the first page until it is
// exhausted or limit rows have been read.
func collectPages[T any](ctx context.Context, limit int, fetch func(ctx context.Context, page, perPage int) ([]T, int64, error)) ([]T, error) {
	var out []T
	for page := 1; len(out) < limit; page++ {
		batch, total, err := fetch(ctx, page, maxPerPage)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < maxPerPage || int64(len(out)) >= total {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
