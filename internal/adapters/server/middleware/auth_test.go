package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"zapfilter/platform/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		reqUser    string
		reqPass    string
		noCreds    bool
		wantStatus int
	}{
		{
			name:       "empty password disables the guard",
			password:   "",
			noCreds:    true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid credentials",
			password:   "s3cret",
			reqUser:    "admin",
			reqPass:    "s3cret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing credentials",
			password:   "s3cret",
			noCreds:    true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong password",
			password:   "s3cret",
			reqUser:    "admin",
			reqPass:    "guess",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong username",
			password:   "s3cret",
			reqUser:    "root",
			reqPass:    "s3cret",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.New(logger.TestConfig())
			guard := BasicAuth("admin", tt.password, log)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if !tt.noCreds {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}
			rec := httptest.NewRecorder()
			guard.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := rec.Header().Get("WWW-Authenticate"); got == "" {
					t.Error("missing WWW-Authenticate header on 401")
				}
			}
		})
	}
}
