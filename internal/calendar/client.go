package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/config"
)

// EventData is the externally-syncable projection of an event record.
type EventData struct {
	Subject    string     `json:"subject"`
	Body       string     `json:"body,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
	Locations  []string   `json:"locations,omitempty"`
	Categories []string   `json:"categories,omitempty"`
}

// SyncResult carries the correlation fields returned by the calendar service.
type SyncResult struct {
	ID        string `json:"id"`
	ChangeKey string `json:"changeKey"`
	WebLink   string `json:"webLink"`
}

// Client is the external calendar collaborator. All methods may fail; callers
// treat failures as a soft sync miss, never as a transaction failure.
type Client interface {
	CreateEvent(ctx context.Context, owner, calendarID string, data EventData) (*SyncResult, error)
	UpdateEvent(ctx context.Context, owner, calendarID, externalID string, data EventData) (*SyncResult, error)
	DeleteEvent(ctx context.Context, owner, calendarID, externalID string) error
}

// graphClient talks to a Microsoft-Graph-style calendar REST API.
type graphClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a calendar client from configuration. A disabled
// configuration yields a client whose calls are skipped and logged.
func NewClient(cfg config.CalendarConfig) Client {
	if !cfg.Enabled {
		log.Warn().Msg("Calendar sync disabled by configuration")
		return &disabledClient{}
	}
	return &graphClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		token:      cfg.ClientSecret,
	}
}

// CreateEvent creates an event in the owner's calendar.
func (c *graphClient) CreateEvent(ctx context.Context, owner, calendarID string, data EventData) (*SyncResult, error) {
	url := fmt.Sprintf("%s/users/%s/calendars/%s/events", c.baseURL, owner, calendarID)
	return c.send(ctx, http.MethodPost, url, data)
}

// UpdateEvent updates an existing event in the owner's calendar.
func (c *graphClient) UpdateEvent(ctx context.Context, owner, calendarID, externalID string, data EventData) (*SyncResult, error) {
	url := fmt.Sprintf("%s/users/%s/calendars/%s/events/%s", c.baseURL, owner, calendarID, externalID)
	return c.send(ctx, http.MethodPatch, url, data)
}

// DeleteEvent removes an event from the owner's calendar.
func (c *graphClient) DeleteEvent(ctx context.Context, owner, calendarID, externalID string) error {
	url := fmt.Sprintf("%s/users/%s/calendars/%s/events/%s", c.baseURL, owner, calendarID, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build calendar delete request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calendar delete request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Errorf("calendar delete returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *graphClient) send(ctx context.Context, method, url string, data EventData) (*SyncResult, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal calendar event data")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build calendar request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calendar request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.Errorf("calendar returned status %d: %s", resp.StatusCode, string(body))
	}

	var result SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode calendar response")
	}
	return &result, nil
}

func (c *graphClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// disabledClient skips all calls.
type disabledClient struct{}

func (d *disabledClient) CreateEvent(ctx context.Context, owner, calendarID string, data EventData) (*SyncResult, error) {
	return nil, errors.New("calendar sync is disabled")
}

func (d *disabledClient) UpdateEvent(ctx context.Context, owner, calendarID, externalID string, data EventData) (*SyncResult, error) {
	return nil, errors.New("calendar sync is disabled")
}

func (d *disabledClient) DeleteEvent(ctx context.Context, owner, calendarID, externalID string) error {
	return errors.New("calendar sync is disabled")
}
