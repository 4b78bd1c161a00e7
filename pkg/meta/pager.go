package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/logging"
)

// DefaultMaxRecords bounds every cursor walk.
const DefaultMaxRecords = 100000

type PageOptions struct {
	// PageDelay is waited between consecutive page requests.
	PageDelay time.Duration
	// MaxRecords stops the walk once this many records were delivered.
	// Zero means DefaultMaxRecords.
	MaxRecords int
}

// PageResult summarizes a cursor walk.
type PageResult struct {
	Pages     int
	Records   int
	Truncated bool
	Next      string
}

type page struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// FetchAll follows paging.next from req until the cursor runs out or
// MaxRecords is reached, handing each page's records to onPage. On error the
// result still reflects the pages delivered so far.
func (c *Client) FetchAll(ctx context.Context, req Request, opts PageOptions, onPage func([]json.RawMessage) error) (*PageResult, error) {
	if req.Method != "" && strings.ToUpper(req.Method) != http.MethodGet {
		return nil, fmt.Errorf("pagination only supports GET requests")
	}
	maxRecords := opts.MaxRecords
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	result := &PageResult{}
	current := req

	for {
		resp, err := c.Do(ctx, current)
		if err != nil {
			return result, err
		}

		var p page
		if err := resp.Decode(&p); err != nil {
			return result, err
		}
		result.Pages++

		items := p.Data
		if remaining := maxRecords - result.Records; len(items) > remaining {
			items = items[:remaining]
		}
		result.Records += len(items)
		if len(items) > 0 {
			if err := onPage(items); err != nil {
				return result, err
			}
		}

		result.Next = p.Paging.Next
		if result.Next == "" {
			return result, nil
		}
		if result.Records >= maxRecords {
			result.Truncated = true
			c.logger.Warn("Reached pagination ceiling, stopping",
				zap.String("path", req.Path),
				zap.Int("max_records", maxRecords),
				zap.Int("pages", result.Pages))
			return result, nil
		}

		next, err := followRequestFromNextURL(result.Next, current)
		if err != nil {
			c.logger.Warn("Unusable paging cursor",
				zap.String("next", logging.SanitizeURL(result.Next)),
				zap.Error(err))
			return result, err
		}
		c.logger.Debug("Following paging cursor",
			zap.String("next", logging.SanitizeURL(result.Next)),
			zap.Int("records", result.Records))
		current = next

		if err := c.Sleep(ctx, opts.PageDelay); err != nil {
			return result, err
		}
	}
}

// followRequestFromNextURL turns a paging.next URL back into a Request. The
// token and proof embedded in the URL are dropped and re-added on send.
func followRequestFromNextURL(nextURL string, previous Request) (Request, error) {
	parsed, err := url.Parse(nextURL)
	if err != nil {
		return Request{}, fmt.Errorf("parse paging.next url: %w", err)
	}
	segments := strings.Split(strings.TrimPrefix(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return Request{}, fmt.Errorf("invalid paging.next path %q", parsed.Path)
	}
	// First segment is the API version, which the client adds itself.
	relPath := strings.Join(segments[1:], "/")

	query := map[string]string{}
	for key, values := range parsed.Query() {
		if len(values) == 0 || key == "access_token" || key == "appsecret_proof" {
			continue
		}
		query[key] = values[len(values)-1]
	}

	return Request{
		Method:      http.MethodGet,
		Path:        relPath,
		Query:       query,
		AccessToken: previous.AccessToken,
	}, nil
}

// collect walks req and decodes every record into T.
func collect[T any](ctx context.Context, c *Client, req Request, opts PageOptions) ([]T, *PageResult, error) {
	var out []T
	result, err := c.FetchAll(ctx, req, opts, func(items []json.RawMessage) error {
		for _, raw := range items {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode %s record: %w", req.Path, err)
			}
			out = append(out, v)
		}
		return nil
	})
	return out, result, err
}
