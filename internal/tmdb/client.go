// Package tmdb 是 The Movie Database API 的轻量代理客户端。
package tmdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"trackd/internal/config"
	"trackd/internal/metrics"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("query parameter is required")

// StatusError carries a non-2xx upstream status so callers can propagate it.
type StatusError struct {
	StatusCode int
	Operation  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s returned %d", e.Operation, e.StatusCode)
}

// Client calls TMDB with a v4 read access token.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a client from cfg.
func NewClient(cfg config.TMDBConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

var searchableTypes = map[string]bool{"movie": true, "tv": true, "person": true}

// Search calls search/multi and drops results whose media_type is not movie, tv or person.
// All other fields are passed through untouched.
func (c *Client) Search(ctx context.Context, query string) (json.RawMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")
	q.Set("language", "en-US")
	q.Set("page", "1")

	var page map[string]json.RawMessage
	if err := c.get(ctx, "search", "/search/multi", q, &page); err != nil {
		return nil, err
	}

	if raw, ok := page["results"]; ok {
		var results []json.RawMessage
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("decode search results: %w", err)
		}
		filtered := make([]json.RawMessage, 0, len(results))
		for _, r := range results {
			var head struct {
				MediaType string `json:"media_type"`
			}
			if err := json.Unmarshal(r, &head); err != nil {
				continue
			}
			if searchableTypes[head.MediaType] {
				filtered = append(filtered, r)
			}
		}
		encoded, err := json.Marshal(filtered)
		if err != nil {
			return nil, err
		}
		page["results"] = encoded
	}
	return json.Marshal(page)
}

// Person is the reshaped person detail returned to clients.
type Person struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	ProfilePath        *string           `json:"profile_path"`
	KnownForDepartment string            `json:"known_for_department"`
	Credits            []json.RawMessage `json:"credits"`
}

type combinedCredits struct {
	Cast []json.RawMessage `json:"cast"`
	Crew []json.RawMessage `json:"crew"`
}

// Person fetches the person and their combined credits concurrently and merges the credits.
func (c *Client) Person(ctx context.Context, id string) (*Person, error) {
	id = url.PathEscape(strings.TrimSpace(id))
	q := url.Values{}
	q.Set("language", "en-US")

	var person Person
	var credits combinedCredits

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, "person", "/person/"+id, q, &person)
	})
	g.Go(func() error {
		return c.get(gctx, "credits", "/person/"+id+"/combined_credits", q, &credits)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]json.RawMessage, 0, len(credits.Cast)+len(credits.Crew))
	all = append(all, credits.Cast...)
	all = append(all, credits.Crew...)
	person.Credits = MergeCredits(all)
	return &person, nil
}

type creditKey struct {
	ID        json.RawMessage `json:"id"`
	VoteCount *float64        `json:"vote_count"`
}

// MergeCredits removes duplicate ids and sorts by vote_count, highest first.
// A duplicate keeps the position of its first occurrence and the value of its last.
// The sort is stable and a missing vote_count counts as 0.
func MergeCredits(items []json.RawMessage) []json.RawMessage {
	type entry struct {
		raw   json.RawMessage
		votes float64
	}
	index := make(map[string]int, len(items))
	merged := make([]entry, 0, len(items))

	for _, raw := range items {
		var k creditKey
		if err := json.Unmarshal(raw, &k); err != nil {
			continue
		}
		var votes float64
		if k.VoteCount != nil {
			votes = *k.VoteCount
		}
		key := string(bytes.TrimSpace(k.ID))
		if pos, seen := index[key]; seen {
			merged[pos] = entry{raw: raw, votes: votes}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, entry{raw: raw, votes: votes})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].votes > merged[j].votes
	})

	out := make([]json.RawMessage, len(merged))
	for i, e := range merged {
		out[i] = e.raw
	}
	return out
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build tmdb request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordTMDBRequest(operation, 0, time.Since(start))
		return fmt.Errorf("tmdb %s: %w", operation, err)
	}
	defer resp.Body.Close()
	metrics.RecordTMDBRequest(operation, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Operation: operation}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tmdb %s response: %w", operation, err)
	}
	return nil
}
