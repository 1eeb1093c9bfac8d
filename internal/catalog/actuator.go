// HTTP [Actuator] implementations and run-start capability probing.
//
// Two actuation styles exist because the shelf may silently reject one of
// them. [StateActuator] calls the direct state endpoint and trusts the
// response code. [ToggleActuator] fires the blind toggle action and exposes an
// [Observer] the engine polls to verify the flip actually took.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidalhook/shelfctl/internal/shared"
)

// shelfClient holds what both actuators need to reach the shelf surface.
type shelfClient struct {
	baseURL    string
	session    *shared.SessionHeaders
	httpClient *http.Client
}

func newShelfClient(baseURL string, session *shared.SessionHeaders, client *http.Client) shelfClient {
	if baseURL == "" {
		baseURL = defaultShelfBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return shelfClient{baseURL: baseURL, session: session, httpClient: client}
}

func (c shelfClient) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session != nil {
		c.session.Apply(req.Header.Set)
	}

	return c.httpClient.Do(req)
}

// StateActuator drives the direct state endpoint: fire-and-trust. The response
// code is the outcome; there is no indicator to verify against.
type StateActuator struct {
	client shelfClient
}

// NewStateActuator creates a fire-and-trust actuator for the shelf at baseURL.
func NewStateActuator(baseURL string, session *shared.SessionHeaders, client *http.Client) *StateActuator {
	return &StateActuator{client: newShelfClient(baseURL, session, client)}
}

// Actuate sets the item's state through PUT /shelf/items/{handle}/state.
func (a *StateActuator) Actuate(ctx context.Context, item Item, enable bool) error {
	endpoint := fmt.Sprintf("/shelf/items/%s/state", url.PathEscape(item.Handle))
	resp, err := a.client.do(ctx, http.MethodPut, endpoint, map[string]bool{"enabled": enable})
	if err != nil {
		return &TransientError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps a shelf response code to an actuation outcome.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return ErrAlreadyDesired
	case status == http.StatusTooManyRequests:
		return &TransientError{Reason: fmt.Sprintf("status %d", status), RateLimited: true}
	case status >= 500:
		return &TransientError{Reason: fmt.Sprintf("status %d", status)}
	default:
		return &PermanentError{Reason: fmt.Sprintf("status %d", status)}
	}
}

// ToggleActuator drives the blind toggle action: fire-and-verify. The toggle
// endpoint acknowledges without reporting the resulting state, so the actuator
// also implements [Observer] over the item read endpoint.
type ToggleActuator struct {
	client shelfClient
}

// NewToggleActuator creates a fire-and-verify actuator for the shelf at baseURL.
func NewToggleActuator(baseURL string, session *shared.SessionHeaders, client *http.Client) *ToggleActuator {
	return &ToggleActuator{client: newShelfClient(baseURL, session, client)}
}

// Actuate fires POST /shelf/items/{handle}/toggle. A 2xx only means the action
// was accepted; callers verify the effect through [ToggleActuator.Observe].
func (a *ToggleActuator) Actuate(ctx context.Context, item Item, enable bool) error {
	endpoint := fmt.Sprintf("/shelf/items/%s/toggle", url.PathEscape(item.Handle))
	resp, err := a.client.do(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return &TransientError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode)
}

// Observe reads the item's current state from the shelf.
func (a *ToggleActuator) Observe(ctx context.Context, item Item) (bool, error) {
	key := item.ID
	if key == "" {
		key = item.Handle
	}

	endpoint := fmt.Sprintf("/shelf/items/%s", url.PathEscape(key))
	resp, err := a.client.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrShelfUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, fmt.Errorf("%w: %s", shared.ErrItemNotFound, key)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("%w: status %d", shared.ErrShelfUnavailable, resp.StatusCode)
	}

	var state struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return false, fmt.Errorf("failed to decode item state: %w", err)
	}
	return state.Enabled, nil
}

// shelfCapabilities is the wire form of GET /shelf/capabilities.
type shelfCapabilities struct {
	StateEndpoint  bool `json:"stateEndpoint"`
	ToggleEndpoint bool `json:"toggleEndpoint"`
}

// ProbeActuator asks the shelf which actuation endpoints it serves and returns
// a matching actuator. The direct state endpoint is preferred when both exist.
// Called once at run start; the engine caches the result for the whole run.
func ProbeActuator(ctx context.Context, baseURL string, session *shared.SessionHeaders, client *http.Client) (Actuator, error) {
	sc := newShelfClient(baseURL, session, client)

	resp, err := sc.do(ctx, http.MethodGet, "/shelf/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrShelfUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: capability probe returned status %d", shared.ErrShelfUnavailable, resp.StatusCode)
	}

	var caps shelfCapabilities
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities: %w", err)
	}

	switch {
	case caps.StateEndpoint:
		return NewStateActuator(baseURL, session, client), nil
	case caps.ToggleEndpoint:
		return NewToggleActuator(baseURL, session, client), nil
	default:
		return nil, fmt.Errorf("%w: shelf advertises no actuation endpoint", shared.ErrShelfUnavailable)
	}
}
