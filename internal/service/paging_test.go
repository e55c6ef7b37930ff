package service

import (
	"context"
	"errors"
	"testing"
)

func TestCollectPages(t *testing.T) {
	listing := func(rows int) func(context.Context, int, int) ([]int, int64, error) {
		return func(_ context.Context, page, perPage int) ([]int, int64, error) {
			var out []int
			for i := (page - 1) * perPage; i < rows && len(out) < perPage; i++ {
				out = append(out, i)
			}
			return out, int64(rows), nil
		}
	}

	tests := []struct {
		name  string
		rows  int
		limit int
		want  int
	}{
		{name: "empty", rows: 0, limit: exportLimit, want: 0},
		{name: "partial page", rows: 42, limit: exportLimit, want: 42},
		{name: "exact pages", rows: 3 * maxPerPage, limit: exportLimit, want: 3 * maxPerPage},
		{name: "over limit", rows: 5 * maxPerPage, limit: 250, want: 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectPages(context.Background(), tt.limit, listing(tt.rows))
			if err != nil {
				t.Fatalf("collectPages: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("rows = %d, want %d", len(got), tt.want)
			}
			for i, v := range got {
				if v != i {
					t.Fatalf("row %d = %d, pages out of order", i, v)
				}
			}
		})
	}

	boom := errors.New("connection reset")
	_, err := collectPages(context.Background(), exportLimit, func(context.Context, int, int) ([]int, int64, error) {
		return nil, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
