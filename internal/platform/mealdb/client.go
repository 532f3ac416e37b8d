// Package mealdb is the client for the remote recipe service (TheMealDB JSON API).
package mealdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"recipebox/internal/logger"
	"recipebox/internal/recipe"
)

// DefaultBaseURL is the public TheMealDB v1 endpoint.
const DefaultBaseURL = "https://www.themealdb.com/api/json/v1/1"

// DefaultRandomCount is how many meals ListRandom callers ask for by default.
const DefaultRandomCount = 10

// ErrFetchFailed matches every *FetchError via errors.Is.
var ErrFetchFailed = errors.New("remote fetch failed")

// FetchError reports a failed request to the remote service. StatusCode is
// zero for network-level or decoding failures.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote fetch failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote fetch failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFetchFailed) true for any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// Compile-time interface check.
var _ recipe.DetailSource = (*Client)(nil)

// Client talks to the remote recipe service. It holds no mutable state and
// is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty). A nil
// httpClient means a plain client with no timeout of its own; callers bound
// requests through the context.
func NewClient(baseURL string, httpClient *http.Client, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

// mealsResponse is the envelope of every endpoint. The service signals
// "no results" by sending null, which decodes to a nil slice.
type mealsResponse struct {
	Meals []RawRecipe `json:"meals"`
}

type categoriesResponse struct {
	Meals []struct {
		Category string `json:"strCategory"`
	} `json:"meals"`
}

// SearchByName returns meals whose name matches query. No match is an
// empty slice, not an error.
func (c *Client) SearchByName(ctx context.Context, query string) ([]RawRecipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "search", "/search.php", url.Values{"s": {query}}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Meals), nil
}

// ListByCategory returns the meals filed under category.
func (c *Client) ListByCategory(ctx context.Context, category string) ([]RawRecipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "filter", "/filter.php", url.Values{"c": {category}}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Meals), nil
}

// ListRandom issues count concurrent single-meal requests and returns the
// distinct meals in request order. Failed requests are skipped, so the
// result may be shorter than count, or empty; it never fails.
func (c *Client) ListRandom(ctx context.Context, count int) []RawRecipe {
	if count < 1 {
		return []RawRecipe{}
	}

	results := make([]*RawRecipe, count)
	var g errgroup.Group
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			var resp mealsResponse
			if err := c.get(ctx, "random", "/random.php", nil, &resp); err != nil {
				c.log.Debug("random meal request %d failed: %v", i, err)
				return nil
			}
			if len(resp.Meals) > 0 {
				results[i] = &resp.Meals[0]
			}
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, count)
	out := make([]RawRecipe, 0, count)
	for _, m := range results {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, *m)
	}
	if len(out) < count {
		c.log.Debug("random listing returned %d of %d requested meals", len(out), count)
	}
	return out
}

// GetDetailByID returns the full meal, or nil when the service has no match.
func (c *Client) GetDetailByID(ctx context.Context, id string) (*RawRecipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "lookup", "/lookup.php", url.Values{"i": {id}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Meals) == 0 {
		return nil, nil
	}
	return &resp.Meals[0], nil
}

// ListCategories returns the category labels known to the service.
func (c *Client) ListCategories(ctx context.Context) ([]recipe.Category, error) {
	var resp categoriesResponse
	if err := c.get(ctx, "categories", "/list.php", url.Values{"c": {"list"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]recipe.Category, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		out = append(out, recipe.Category{Name: m.Category})
	}
	return out, nil
}

// LookupRecipe fetches a meal and converts it to a Recipe with ingredients
// and instructions attached. It returns nil, nil when there is no match.
func (c *Client) LookupRecipe(ctx context.Context, id string) (*recipe.Recipe, error) {
	raw, err := c.GetDetailByID(ctx, id)
	if err != nil || raw == nil {
		return nil, err
	}
	r := ToRecipe(*raw)
	return &r, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("failed to decode response body: %w", err)}
	}
	return nil
}

func nonNil(meals []RawRecipe) []RawRecipe {
	if meals == nil {
		return []RawRecipe{}
	}
	return meals
}
