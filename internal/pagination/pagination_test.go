package pagination

import "testing"

func TestNewClampsInputs(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{page: 0, limit: 0, wantPage: 1, wantLimit: DefaultLimit},
		{page: -3, limit: 500, wantPage: 1, wantLimit: MaxLimit},
		{page: 4, limit: 10, wantPage: 4, wantLimit: 10},
	}
	for _, tc := range cases {
		got := New(tc.page, tc.limit)
		if got.Page != tc.wantPage || got.Limit != tc.wantLimit {
			t.Fatalf("New(%d, %d) = %+v", tc.page, tc.limit, got)
		}
	}
}

func TestBuildMeta(t *testing.T) {
	p := New(2, 10)
	meta := BuildMeta(25, p)

	if meta.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", meta.TotalPages)
	}
	if !meta.HasNext || !meta.HasPrev {
		t.Fatalf("expected both next and prev, got %+v", meta)
	}
	if p.Offset() != 10 {
		t.Fatalf("expected offset 10, got %d", p.Offset())
	}

	empty := BuildMeta(0, New(1, 10))
	if empty.TotalPages != 0 || empty.HasNext || empty.HasPrev {
		t.Fatalf("unexpected empty meta %+v", empty)
	}
}
