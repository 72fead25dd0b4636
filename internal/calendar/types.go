package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// NoTitle is reported for events without a summary.
const NoTitle = "No Title"

// Event is the simplified event returned by ListEvents and CreateEvent.
type Event struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Attendees   []string `json:"attendees"`
	HTMLLink    string   `json:"html_link"`
	MeetLink    string   `json:"meet_link,omitempty"`
}

// EventInput describes an event to create.
type EventInput struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

// toEvent converts a Google Calendar event. All-day events report their
// date in place of a date-time.
func toEvent(event *calendar.Event) Event {
	if event == nil {
		return Event{Attendees: []string{}}
	}

	e := Event{
		ID:          event.Id,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		StartTime:   eventTime(event.Start),
		EndTime:     eventTime(event.End),
		Attendees:   make([]string, 0, len(event.Attendees)),
		HTMLLink:    event.HtmlLink,
	}
	if e.Summary == "" {
		e.Summary = NoTitle
	}
	for _, att := range event.Attendees {
		e.Attendees = append(e.Attendees, att.Email)
	}

	if event.ConferenceData != nil {
		for _, ep := range event.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				e.MeetLink = ep.Uri
				break
			}
		}
	}
	return e
}

func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
