// Package directory consumes the external user-directory REST endpoint. The
// chat core does not own this list; it only feeds the start-chat and
// create-group pickers.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// User is a directory entry: just enough to render a picker row.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

// Client is a thin wrapper over the user-directory service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs the wrapper.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SearchUsers returns directory entries matching the query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	endpoint := fmt.Sprintf("%s/users?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user directory returned status %d", resp.StatusCode)
	}

	var payload struct {
		Users []User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Users, nil
}
