package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// PrimaryCalendar is the calendar id used for all operations.
const PrimaryCalendar = "primary"

// DefaultDays is the ListEvents window when none is given.
const DefaultDays = 7

// Client wraps the Google Calendar service for one user.
type Client struct {
	svc *calendar.Service
	now func() time.Time
}

// NewClient creates a client over an authenticated HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{svc: svc, now: time.Now}, nil
}

// ListEvents lists single events on the primary calendar starting within
// the next days days, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, days int) ([]Event, error) {
	if days <= 0 {
		days = DefaultDays
	}
	timeMin := c.now().UTC()
	timeMax := timeMin.AddDate(0, 0, days)

	res, err := c.svc.Events.List(PrimaryCalendar).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

// CreateEvent creates an event on the primary calendar.
func (c *Client) CreateEvent(ctx context.Context, input EventInput) (*Event, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !input.End.After(input.Start) {
		return nil, fmt.Errorf("end time must be after start time")
	}
	if input.TimeZone == "" {
		input.TimeZone = "UTC"
	}

	event := &calendar.Event{
		Summary:     input.Title,
		Description: input.Description,
		Location:    input.Location,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: input.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: input.TimeZone,
		},
	}
	for _, email := range input.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := c.svc.Events.Insert(PrimaryCalendar, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	e := toEvent(created)
	return &e, nil
}

// ParseTime accepts RFC 3339 timestamps and the shorter
// "2006-01-02T15:04" form, which is read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339", s)
}
