package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/auth/login":              "/v1/auth/login",
		"/v1/rbac/roles":              "/v1/rbac/roles",
		"/v1/rbac/roles/viewer":       "/v1/rbac/roles/:name",
		"/v1/rbac/roles/viewer/extra": "/v1/rbac/roles/viewer/extra",
		"/v1/security/events?limit=5": "/v1/security/events",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
