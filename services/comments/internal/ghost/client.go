// Package ghost reads posts from the Ghost Content API (v3).
package ghost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const DefaultBaseURL = "http://localhost:2368"

// ErrNotFound is returned when Ghost has no post with the requested id.
var ErrNotFound = errors.New("ghost: post not found")

// Post is the subset of a Ghost post the service needs.
type Post struct {
	ID    string `json:"id"`
	UUID  string `json:"uuid,omitempty"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
	URL   string `json:"url"`
}

type postsResponse struct {
	Posts []Post `json:"posts"`
}

type Client struct {
	BaseURL    string
	Key        string
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func New(baseURL, key string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Key:        key,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewCircuitBreaker returns the breaker used around Ghost calls. A missing
// post is a healthy answer and does not count as a failure.
func NewCircuitBreaker(failureThreshold uint32, timeout time.Duration, log *zap.Logger) *gobreaker.CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ghost",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// FetchPost reads one published post by id.
func (c *Client) FetchPost(ctx context.Context, id string) (Post, error) {
	if c.CB == nil {
		return c.fetchPost(ctx, id)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return c.fetchPost(ctx, id)
	})
	if err != nil {
		return Post{}, err
	}
	return result.(Post), nil
}

func (c *Client) fetchPost(ctx context.Context, id string) (Post, error) {
	endpoint := c.BaseURL + "/ghost/api/v3/content/posts/" + url.PathEscape(id) + "/?key=" + url.QueryEscape(c.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Post{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", "v3")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Post{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Post{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return Post{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("ghost request failed", zap.String("post_id", id), zap.Int("status", resp.StatusCode))
		return Post{}, fmt.Errorf("ghost: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	var out postsResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return Post{}, fmt.Errorf("ghost: decode error: %w", err)
	}
	if len(out.Posts) == 0 {
		return Post{}, ErrNotFound
	}
	return out.Posts[0], nil
}
