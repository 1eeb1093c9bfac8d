// HTTP [Source] implementation for the shelf surface.
//
// The shelf renders items in pages behind a cursor. Each page carries both a
// structured payload and the rendered markup fragment; the attribute reader
// prefers the structured fields and falls back to scraping data attributes out
// of the markup only when a field is absent, so surface redesigns degrade
// gracefully instead of failing the run.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"

	"github.com/tidalhook/shelfctl/internal/shared"
)

const defaultShelfBaseURL string = "http://localhost:8080"

// shelfItem is the wire representation of one shelf entry.
type shelfItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Enabled  *bool  `json:"enabled"`
	Handle   string `json:"actionToken"`
	Rendered string `json:"rendered,omitempty"` // markup fragment, scrape fallback
}

// shelfPage is the wire representation of one page read.
type shelfPage struct {
	Items      []shelfItem `json:"items"`
	NextCursor string      `json:"nextCursor"`
	Loading    bool        `json:"loading"`
}

// ShelfSource reads items from the shelf's HTTP surface page by page.
// Pages accumulate: Items returns everything rendered so far, mirroring the
// surface's append-on-scroll behavior.
type ShelfSource struct {
	baseURL    string
	session    *shared.SessionHeaders
	httpClient *http.Client

	mu       sync.Mutex
	rendered []Item
	cursor   string
	started  bool
	last     PageState
}

// NewShelfSource creates a source for the shelf at baseURL. The session may be
// nil for unauthenticated surfaces; the client defaults to [http.DefaultClient].
func NewShelfSource(baseURL string, session *shared.SessionHeaders, client *http.Client) *ShelfSource {
	if baseURL == "" {
		baseURL = defaultShelfBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &ShelfSource{
		baseURL:    baseURL,
		session:    session,
		httpClient: client,
	}
}

// Items returns all items rendered so far, fetching the first page on demand.
func (s *ShelfSource) Items(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if err := s.fetchPage(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]Item, len(s.rendered))
	copy(out, s.rendered)
	return out, nil
}

// Pagination reports the position observed on the most recent page read.
func (s *ShelfSource) Pagination(ctx context.Context) (PageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if err := s.fetchPage(ctx); err != nil {
			return PageState{}, err
		}
	}
	return s.last, nil
}

// Advance loads the next page and appends its items to the rendered set.
func (s *ShelfSource) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && s.last.LastPage {
		return fmt.Errorf("%w: no further pages", shared.ErrInvalidInput)
	}
	return s.fetchPage(ctx)
}

// fetchPage reads one page at the current cursor. Callers hold s.mu.
func (s *ShelfSource) fetchPage(ctx context.Context) error {
	endpoint := s.baseURL + "/shelf/items"
	if s.cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(s.cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if s.session != nil {
		s.session.Apply(req.Header.Set)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrShelfUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrShelfUnavailable, resp.StatusCode)
	}

	var page shelfPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fmt.Errorf("failed to decode page: %w", err)
	}

	for _, raw := range page.Items {
		s.rendered = append(s.rendered, readItem(raw))
	}

	s.cursor = page.NextCursor
	s.started = true
	s.last = PageState{
		LastPage:   page.NextCursor == "",
		Loading:    page.Loading,
		CanAdvance: page.NextCursor != "",
	}
	return nil
}

var (
	dataTitleRegex    = regexp.MustCompile(`data-title="([^"]*)"`)
	dataCategoryRegex = regexp.MustCompile(`data-category="([^"]*)"`)
	dataEnabledRegex  = regexp.MustCompile(`data-enabled="(true|false)"`)
	dataTokenRegex    = regexp.MustCompile(`data-action-token="([^"]*)"`)
)

// readItem converts a wire item to the engine model, filling any field the
// structured payload omitted from the rendered markup fragment.
func readItem(raw shelfItem) Item {
	item := Item{
		ID:     raw.ID,
		Title:  raw.Title,
		Handle: raw.Handle,
	}

	if raw.Enabled != nil {
		item.Enabled = *raw.Enabled
	}
	item.Category = ParseCategory(raw.Category)

	if raw.Rendered == "" {
		return item
	}

	if item.Title == "" {
		if m := dataTitleRegex.FindStringSubmatch(raw.Rendered); m != nil {
			item.Title = m[1]
		}
	}
	if raw.Category == "" {
		if m := dataCategoryRegex.FindStringSubmatch(raw.Rendered); m != nil {
			item.Category = ParseCategory(m[1])
		}
	}
	if raw.Enabled == nil {
		if m := dataEnabledRegex.FindStringSubmatch(raw.Rendered); m != nil {
			item.Enabled = m[1] == "true"
		}
	}
	if item.Handle == "" {
		if m := dataTokenRegex.FindStringSubmatch(raw.Rendered); m != nil {
			item.Handle = m[1]
		}
	}

	return item
}
