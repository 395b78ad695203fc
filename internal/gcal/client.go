// Package gcal is a Google Calendar v3 REST client covering the
// operations the calendar tool server exposes: event listing, event
// creation, and free/busy queries.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenProvider supplies a valid OAuth access token per request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a Google Calendar API client for a single calendar.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	calendarID string
	baseURL    string
}

// NewClient creates a calendar client. calendarID is usually "primary"
// or an email address.
func NewClient(tokens TokenProvider, calendarID string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		calendarID: calendarID,
		baseURL:    defaultBaseURL,
	}
}

// CalendarID returns the configured calendar ID.
func (c *Client) CalendarID() string {
	return c.calendarID
}

// request makes an authenticated request to the Calendar API
func (c *Client) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("calendar API error (%d): %s", errResp.Error.Code, errResp.Error.Message)
		}
		return nil, fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Event represents a calendar event
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AllDay      bool       `json:"all_day"`
	Status      string     `json:"status"` // confirmed, tentative, cancelled
	Organizer   string     `json:"organizer,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	HtmlLink    string     `json:"html_link,omitempty"`
	MeetLink    string     `json:"meet_link,omitempty"`
}

// Attendee represents an event attendee
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status"` // needsAction, declined, tentative, accepted
	Self           bool   `json:"self,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
}

// googleEvent represents the Google Calendar API event format
type googleEvent struct {
	ID             string           `json:"id"`
	Summary        string           `json:"summary"`
	Description    string           `json:"description,omitempty"`
	Location       string           `json:"location,omitempty"`
	Status         string           `json:"status"`
	HtmlLink       string           `json:"htmlLink,omitempty"`
	Start          *googleDateTime  `json:"start,omitempty"`
	End            *googleDateTime  `json:"end,omitempty"`
	Organizer      *googlePerson    `json:"organizer,omitempty"`
	Attendees      []googleAttendee `json:"attendees,omitempty"`
	ConferenceData *conferenceData  `json:"conferenceData,omitempty"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googlePerson struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type googleAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
	Self           bool   `json:"self,omitempty"`
	Organizer      bool   `json:"organizer,omitempty"`
}

type conferenceData struct {
	EntryPoints []entryPoint `json:"entryPoints,omitempty"`
}

type entryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

type eventsResponse struct {
	Items []googleEvent `json:"items"`
}

// ListEventsParams for querying events
type ListEventsParams struct {
	TimeMin    time.Time // Start of time range (required)
	TimeMax    time.Time // End of time range (required)
	MaxResults int       // Max events to return (default 100)
	Query      string    // Free text search
}

// ListEvents retrieves events in the specified time range, recurring
// events expanded, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, params ListEventsParams) ([]Event, error) {
	if params.MaxResults == 0 {
		params.MaxResults = 100
	}

	queryParams := url.Values{}
	queryParams.Set("timeMin", params.TimeMin.Format(time.RFC3339))
	queryParams.Set("timeMax", params.TimeMax.Format(time.RFC3339))
	queryParams.Set("maxResults", fmt.Sprintf("%d", params.MaxResults))
	queryParams.Set("singleEvents", "true")
	queryParams.Set("orderBy", "startTime")
	if params.Query != "" {
		queryParams.Set("q", params.Query)
	}

	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(c.calendarID), queryParams.Encode())
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp eventsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse events response: %w", err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		event, err := convertEvent(&item)
		if err != nil {
			continue // Skip malformed events
		}
		events = append(events, event)
	}

	return events, nil
}

// FreeBusyParams for checking availability
type FreeBusyParams struct {
	TimeMin time.Time
	TimeMax time.Time
}

// BusyPeriod represents a period when the calendar is busy. The API
// returns periods ordered by start time; overlap is not guaranteed to
// be merged.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeBusy returns the busy periods for the calendar in the window.
func (c *Client) FreeBusy(ctx context.Context, params FreeBusyParams) ([]BusyPeriod, error) {
	reqBody := map[string]interface{}{
		"timeMin": params.TimeMin.Format(time.RFC3339),
		"timeMax": params.TimeMax.Format(time.RFC3339),
		"items": []map[string]string{
			{"id": c.calendarID},
		},
	}

	data, err := c.request(ctx, "POST", "/freeBusy", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse freebusy response: %w", err)
	}

	calendar, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar not found in response")
	}

	periods := make([]BusyPeriod, 0, len(calendar.Busy))
	for _, busy := range calendar.Busy {
		start, err := time.Parse(time.RFC3339, busy.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, busy.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end: %w", err)
		}
		periods = append(periods, BusyPeriod{
			Start: start,
			End:   end,
		})
	}

	return periods, nil
}

// CreateEventParams for creating a new event
type CreateEventParams struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Attendees   []string // Email addresses
}

// CreateEvent creates a new calendar event
func (c *Client) CreateEvent(ctx context.Context, params CreateEventParams) (*Event, error) {
	event := map[string]interface{}{
		"summary":     params.Summary,
		"description": params.Description,
		"location":    params.Location,
	}

	if params.AllDay {
		event["start"] = map[string]string{
			"date": params.Start.Format("2006-01-02"),
		}
		event["end"] = map[string]string{
			"date": params.End.Format("2006-01-02"),
		}
	} else {
		event["start"] = map[string]string{
			"dateTime": params.Start.Format(time.RFC3339),
			"timeZone": params.Start.Location().String(),
		}
		event["end"] = map[string]string{
			"dateTime": params.End.Format(time.RFC3339),
			"timeZone": params.End.Location().String(),
		}
	}

	if len(params.Attendees) > 0 {
		attendees := make([]map[string]string, len(params.Attendees))
		for i, email := range params.Attendees {
			attendees[i] = map[string]string{"email": email}
		}
		event["attendees"] = attendees
	}

	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(c.calendarID))
	data, err := c.request(ctx, "POST", path, event)
	if err != nil {
		return nil, err
	}

	var item googleEvent
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse created event: %w", err)
	}

	result, err := convertEvent(&item)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// convertEvent converts a Google Calendar event to our Event type
func convertEvent(item *googleEvent) (Event, error) {
	event := Event{
		ID:          item.ID,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		HtmlLink:    item.HtmlLink,
	}

	// Parse start time
	if item.Start != nil {
		if item.Start.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("parse start time: %w", err)
			}
			event.Start = t
		} else if item.Start.Date != "" {
			t, err := time.Parse("2006-01-02", item.Start.Date)
			if err != nil {
				return Event{}, fmt.Errorf("parse start date: %w", err)
			}
			event.Start = t
			event.AllDay = true
		}
	}

	// Parse end time
	if item.End != nil {
		if item.End.DateTime != "" {
			t, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return Event{}, fmt.Errorf("parse end time: %w", err)
			}
			event.End = t
		} else if item.End.Date != "" {
			t, err := time.Parse("2006-01-02", item.End.Date)
			if err != nil {
				return Event{}, fmt.Errorf("parse end date: %w", err)
			}
			event.End = t
		}
	}

	// Extract organizer
	if item.Organizer != nil {
		if item.Organizer.DisplayName != "" {
			event.Organizer = item.Organizer.DisplayName
		} else {
			event.Organizer = item.Organizer.Email
		}
	}

	// Extract attendees
	if len(item.Attendees) > 0 {
		event.Attendees = make([]Attendee, len(item.Attendees))
		for i, a := range item.Attendees {
			event.Attendees[i] = Attendee{
				Email:          a.Email,
				DisplayName:    a.DisplayName,
				ResponseStatus: a.ResponseStatus,
				Self:           a.Self,
				Organizer:      a.Organizer,
			}
		}
	}

	// Extract Google Meet link
	if item.ConferenceData != nil {
		for _, entry := range item.ConferenceData.EntryPoints {
			if entry.EntryPointType == "video" {
				event.MeetLink = entry.URI
				break
			}
		}
	}

	return event, nil
}
