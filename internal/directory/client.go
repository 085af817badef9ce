// Package directory provides the §6.5 user-directory collaborator client:
// GET {USER_SERVICE_URL}/users/{user_id}. The production implementation is a
// real HTTP client; a mock variant with synthesized latency backs local and
// end-to-end testing, matching the original system's own mocked directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// ErrUserNotFound is returned for a 404 response (or, from the mock, a user
// missing from its set). An inactive user is returned without error; the
// order service checks the status itself and maps both cases to its own
// 404 (§4.7, §7 PolicyViolation).
var ErrUserNotFound = errors.New("user not found")

// User is the §6.5 directory record.
type User struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Client is the interface the order service depends on, so tests can swap
// in a fake without standing up an HTTP server.
type Client interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

// httpClient is the production implementation, with a bounded retry on
// transient failures: up to 3 attempts, exponential backoff 1-10 s (§7).
type httpClient struct {
	baseURL    string
	httpClient *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// NewClient constructs a directory Client pointed at baseURL (USER_SERVICE_URL).
func NewClient(baseURL string) Client {
	return &httpClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		maxAttempts: 3,
		minBackoff:  1 * time.Second,
		maxBackoff:  10 * time.Second,
	}
}

func (c *httpClient) GetUser(ctx context.Context, userID string) (User, error) {
	url := fmt.Sprintf("%s/users/%s", c.baseURL, userID)

	var lastErr error
	backoff := c.minBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		user, err := c.doGetUser(ctx, url)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return User{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return User{}, fmt.Errorf("directory: get user %s: %w", userID, lastErr)
}

func (c *httpClient) doGetUser(ctx context.Context, url string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return User{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return User{}, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode response: %w", err)
	}
	return user, nil
}

// mockClient is an in-memory stand-in for the real user-directory service,
// synthesizing the 50-200ms latency budget §6.5 describes. It is wired up
// by cmd/api when USER_SERVICE_URL is unset.
type mockClient struct {
	users map[string]User
}

// NewMockClient returns a Client backed by an in-memory user set.
func NewMockClient(users map[string]User) Client {
	return &mockClient{users: users}
}

func (c *mockClient) GetUser(ctx context.Context, userID string) (User, error) {
	delay := time.Duration(50+rand.Intn(150)) * time.Millisecond
	select {
	case <-ctx.Done():
		return User{}, ctx.Err()
	case <-time.After(delay):
	}

	user, ok := c.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
