package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// authClient talks to the external authorization gateway that owns token
// issuance and validation. The core only forwards opaque bearer tokens.
type authClient struct {
	baseURL string
	client  *http.Client
}

func newAuthClient(cfg *Config) *authClient {
	return &authClient{
		baseURL: strings.TrimSuffix(cfg.authURL, "/"),
		client:  &http.Client{Timeout: cfg.authTimeout},
	}
}

// verify asks the gateway who owns the token. An unreachable gateway is
// reported with its own message, distinct from a rejected token, but both
// surface as authorization errors: the state machine treats them alike and
// no game state is touched before verification completes.
func (a *authClient) verify(token string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/host/verify", nil)
	if err != nil {
		return "", errAuthorization("Authentication service unavailable")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("authorization gateway unreachable")
		return "", errAuthorization("Authentication service unavailable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			HostID string `json:"host_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.HostID == "" {
			return "", errAuthorization("Invalid token")
		}
		return body.HostID, nil
	case http.StatusUnauthorized:
		return "", errAuthorization("Token expired")
	default:
		return "", errAuthorization("Invalid token")
	}
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", errAuthorization("Missing or invalid token format")
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}
