package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newAuthStub serves the gateway contract: "good" verifies as host_1,
// "expired" is a 401, anything else a 403.
func newAuthStub(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/host/verify" {
			http.NotFound(w, r)
			return
		}

		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"host_id":"host_1"}`))
		case "Bearer expired":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestVerifyValidToken(t *testing.T) {
	stub := newAuthStub(t)
	cfg := testConfig()
	cfg.authURL = stub.URL

	hostID, err := newAuthClient(cfg).verify("good")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if hostID != "host_1" {
		t.Errorf("hostID = %q, want host_1", hostID)
	}
}

func TestVerifyRejectedTokens(t *testing.T) {
	stub := newAuthStub(t)
	cfg := testConfig()
	cfg.authURL = stub.URL
	auth := newAuthClient(cfg)

	tests := []struct {
		token       string
		wantMessage string
	}{
		{"expired", "Token expired"},
		{"garbage", "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			_, err := auth.verify(tt.token)
			wantKind(t, err, kindAuthorization, tt.wantMessage)
			if httpStatus(err) != http.StatusUnauthorized {
				t.Errorf("httpStatus = %d, want 401", httpStatus(err))
			}
		})
	}
}

func TestVerifyGatewayUnreachable(t *testing.T) {
	stub := httptest.NewServer(http.NotFoundHandler())
	url := stub.URL
	stub.Close()

	cfg := testConfig()
	cfg.authURL = url
	cfg.authTimeout = time.Second

	_, err := newAuthClient(cfg).verify("good")
	wantKind(t, err, kindAuthorization, "Authentication service unavailable")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"missing", "", "", false},
		{"wrong_scheme", "Basic abc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/game/create", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			token, err := bearerToken(r)
			if tt.ok {
				if err != nil {
					t.Fatalf("bearerToken: %v", err)
				}
				if token != tt.want {
					t.Errorf("token = %q, want %q", token, tt.want)
				}
				return
			}
			wantKind(t, err, kindAuthorization, "Missing or invalid token format")
		})
	}
}
