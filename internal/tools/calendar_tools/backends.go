package calendar_tools

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/option"

	"github.com/teemow/inboxgate/internal/calendar"
	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/tools/common"
)

// Integration is the registry name of the Calendar integration.
const Integration = "calendar"

const (
	ToolListEvents  = "list_events"
	ToolCreateEvent = "create_event"
)

// MaxDays caps the list_events window.
const MaxDays = 365

// Scheduler is the Calendar surface the tools use.
type Scheduler interface {
	ListEvents(ctx context.Context, days int) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, input calendar.EventInput) (*calendar.Event, error)
}

// SchedulerFactory opens the calendar of one user.
type SchedulerFactory func(ctx context.Context, userID string) (Scheduler, error)

// HTTPClientSource returns an authenticated Google client for a user.
type HTTPClientSource interface {
	HTTPClient(ctx context.Context, userID string) (*http.Client, error)
}

// NewSchedulerFactory returns a factory that builds Calendar clients from
// the user's Google credentials.
func NewSchedulerFactory(creds HTTPClientSource, opts ...option.ClientOption) SchedulerFactory {
	return func(ctx context.Context, userID string) (Scheduler, error) {
		hc, err := creds.HTTPClient(ctx, userID)
		if err != nil {
			return nil, err
		}
		return calendar.NewClient(ctx, hc, opts...)
	}
}

type backends struct {
	open    SchedulerFactory
	metrics *instrumentation.Metrics
}

// RegisterBackends adds the Calendar tools to reg. metrics may be nil.
func RegisterBackends(reg *permission.Registry, open SchedulerFactory, metrics *instrumentation.Metrics) error {
	b := &backends{open: open, metrics: metrics}
	if err := reg.Register(Integration, ToolListEvents, b.listEvents); err != nil {
		return err
	}
	return reg.Register(Integration, ToolCreateEvent, b.createEvent)
}

func (b *backends) listEvents(ctx context.Context, call permission.Call) (any, error) {
	days, err := common.Params(call.Params).Int("days", calendar.DefaultDays)
	if err != nil {
		return nil, err
	}
	if days <= 0 || days > MaxDays {
		return nil, fmt.Errorf("days must be between 1 and %d", MaxDays)
	}

	scheduler, err := b.open(ctx, call.UserID)
	if err != nil {
		return nil, err
	}

	var events []calendar.Event
	err = common.TrackGoogleAPI(ctx, b.metrics, instrumentation.ServiceCalendar, instrumentation.OperationList,
		func(ctx context.Context) error {
			var err error
			events, err = scheduler.ListEvents(ctx, int(days))
			return err
		})
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events}, nil
}

func (b *backends) createEvent(ctx context.Context, call permission.Call) (any, error) {
	input, err := parseEventInput(common.Params(call.Params))
	if err != nil {
		return nil, err
	}

	scheduler, err := b.open(ctx, call.UserID)
	if err != nil {
		return nil, err
	}

	var event *calendar.Event
	err = common.TrackGoogleAPI(ctx, b.metrics, instrumentation.ServiceCalendar, instrumentation.OperationCreate,
		func(ctx context.Context) error {
			var err error
			event, err = scheduler.CreateEvent(ctx, input)
			return err
		})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func parseEventInput(p common.Params) (calendar.EventInput, error) {
	var input calendar.EventInput
	var err error

	if input.Title, err = p.RequiredString("title"); err != nil {
		return input, err
	}
	if input.Start, err = requiredTime(p, "start"); err != nil {
		return input, err
	}
	if input.End, err = requiredTime(p, "end"); err != nil {
		return input, err
	}
	if !input.End.After(input.Start) {
		return input, fmt.Errorf("end must be after start")
	}
	if input.Description, err = p.String("description"); err != nil {
		return input, err
	}
	if input.Location, err = p.String("location"); err != nil {
		return input, err
	}
	if input.Attendees, err = p.StringList("attendees"); err != nil {
		return input, err
	}
	input.Start = input.Start.UTC()
	input.End = input.End.UTC()
	input.TimeZone = "UTC"
	return input, nil
}

func requiredTime(p common.Params, name string) (t time.Time, err error) {
	s, err := p.RequiredString(name)
	if err != nil {
		return t, err
	}
	t, err = calendar.ParseTime(s)
	if err != nil {
		return t, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}
