// Package broker is the client for the external secret broker that
// mints just-in-time database credentials for privileged tools.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds the credential-minting round trip.
const DefaultTimeout = 5 * time.Second

// ErrNoToken is returned when the client is constructed without a
// broker token.
var ErrNoToken = errors.New("broker token not set")

// Credentials is a minted database credential lease. Username and
// Password must never reach audit entries, receipts, or error messages.
type Credentials struct {
	LeaseID       string
	LeaseDuration int
	Username      string
	Password      string
}

// Client talks to a vault-style secret broker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a broker client. timeout defaults to DefaultTimeout
// when zero.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// DatabaseCreds requests short-lived database credentials for role via
// GET /v1/database/creds/<role>.
func (c *Client) DatabaseCreds(ctx context.Context, role string) (*Credentials, error) {
	url := c.baseURL + "/v1/database/creds/" + role
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build creds request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("broker returned status %d for role %q", resp.StatusCode, role)
	}

	var lease struct {
		LeaseID       string `json:"lease_id"`
		LeaseDuration int    `json:"lease_duration"`
		Data          struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lease); err != nil {
		return nil, fmt.Errorf("decode broker response: %w", err)
	}
	if lease.Data.Username == "" || lease.Data.Password == "" {
		return nil, errors.New("broker response missing credentials")
	}

	return &Credentials{
		LeaseID:       lease.LeaseID,
		LeaseDuration: lease.LeaseDuration,
		Username:      lease.Data.Username,
		Password:      lease.Data.Password,
	}, nil
}
