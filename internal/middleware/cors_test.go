package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{"listed origin", []string{"https://app.example"}, "https://app.example", http.MethodGet, http.StatusOK, "https://app.example"},
		{"suffix is not a match", []string{"app.example"}, "https://evil-app.example", http.MethodGet, http.StatusOK, ""},
		{"wildcard", []string{"*"}, "https://any.example", http.MethodGet, http.StatusOK, "https://any.example"},
		{"preflight", []string{"*"}, "https://any.example", http.MethodOptions, http.StatusNoContent, "https://any.example"},
		{"no origin header", []string{"*"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewCORSMiddleware(tc.origins)
			req := httptest.NewRequest(tc.method, "/registry/entries/user1.test", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			m.Handler(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantAllow)
			}
		})
	}

	if NewCORSMiddleware(nil).Enabled() {
		t.Error("empty origin list should be disabled")
	}
}
