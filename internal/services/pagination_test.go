package services

import "testing"

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 50},
		{-3, 10, 1, 10},
		{2, 500, 2, 100},
		{4, 25, 4, 25},
	}
	for _, tt := range tests {
		page, limit := NormalizePage(tt.page, tt.limit, 50, 100)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Errorf("NormalizePage(%d, %d) = %d, %d; want %d, %d",
				tt.page, tt.limit, page, limit, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 50, 101)
	if p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
	if NewPagination(1, 50, 0).TotalPages != 0 {
		t.Error("empty listing should have zero pages")
	}
}
