package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/hall-booking/internal/application"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		method string
		target string
		header string
		want   string
	}{
		{name: "header", method: http.MethodPost, target: "/bookings", header: "Bearer abc", want: "abc"},
		{name: "case insensitive scheme", method: http.MethodGet, target: "/me", header: "bearer  abc ", want: "abc"},
		{name: "other scheme", method: http.MethodGet, target: "/me", header: "Basic abc", want: ""},
		{name: "header wins over query", method: http.MethodGet, target: "/notifications/stream?access_token=q", header: "Bearer h", want: "h"},
		{name: "query on GET", method: http.MethodGet, target: "/notifications/stream?access_token=q", want: "q"},
		{name: "query ignored on POST", method: http.MethodPost, target: "/bookings?access_token=q", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := bearerToken(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("expected no principal on a bare context")
	}
	want := application.Principal{UserID: "u1", Role: application.RoleAdmin}
	got, ok := PrincipalFromContext(ContextWithPrincipal(context.Background(), want))
	if !ok || got.UserID != "u1" || got.Role != application.RoleAdmin {
		t.Fatalf("unexpected principal %+v", got)
	}
}
