package gmail_tools

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"

	"github.com/teemow/inboxgate/internal/gmail"
	"github.com/teemow/inboxgate/internal/instrumentation"
	"github.com/teemow/inboxgate/internal/permission"
	"github.com/teemow/inboxgate/internal/tools/common"
)

// Integration is the registry name of the Gmail integration.
const Integration = "gmail"

const (
	ToolSearch    = "search_gmail"
	ToolLastEmail = "get_last_email"
	ToolSend      = "send_gmail"
)

// MaxSearchResults caps max_results on search_gmail.
const MaxSearchResults = 100

// Mailbox is the Gmail surface the tools use.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]gmail.Email, error)
	LastReceived(ctx context.Context) (*gmail.Email, error)
	Send(ctx context.Context, msg gmail.OutgoingMessage) (string, error)
}

// MailboxFactory opens the mailbox of one user.
type MailboxFactory func(ctx context.Context, userID string) (Mailbox, error)

// HTTPClientSource returns an authenticated Google client for a user.
type HTTPClientSource interface {
	HTTPClient(ctx context.Context, userID string) (*http.Client, error)
}

// NewMailboxFactory returns a factory that builds Gmail clients from the
// user's Google credentials.
func NewMailboxFactory(creds HTTPClientSource, opts ...option.ClientOption) MailboxFactory {
	return func(ctx context.Context, userID string) (Mailbox, error) {
		hc, err := creds.HTTPClient(ctx, userID)
		if err != nil {
			return nil, err
		}
		return gmail.NewClient(ctx, hc, opts...)
	}
}

type backends struct {
	open    MailboxFactory
	metrics *instrumentation.Metrics
}

// RegisterBackends adds the Gmail tools to reg. metrics may be nil.
func RegisterBackends(reg *permission.Registry, open MailboxFactory, metrics *instrumentation.Metrics) error {
	b := &backends{open: open, metrics: metrics}

	tools := []struct {
		name string
		fn   permission.ToolFunc
	}{
		{ToolSearch, b.search},
		{ToolLastEmail, b.lastEmail},
		{ToolSend, b.send},
	}
	for _, t := range tools {
		if err := reg.Register(Integration, t.name, t.fn); err != nil {
			return err
		}
	}
	return nil
}

func (b *backends) search(ctx context.Context, call permission.Call) (any, error) {
	p := common.Params(call.Params)
	query, err := p.RequiredString("query")
	if err != nil {
		return nil, err
	}
	limit, err := p.Int("max_results", gmail.DefaultMaxResults)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("max_results must be positive")
	}
	limit = min(limit, MaxSearchResults)

	mailbox, err := b.open(ctx, call.UserID)
	if err != nil {
		return nil, err
	}

	var emails []gmail.Email
	err = common.TrackGoogleAPI(ctx, b.metrics, instrumentation.ServiceGmail, instrumentation.OperationSearch,
		func(ctx context.Context) error {
			var err error
			emails, err = mailbox.Search(ctx, query, limit)
			return err
		})
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": emails}, nil
}

func (b *backends) lastEmail(ctx context.Context, call permission.Call) (any, error) {
	mailbox, err := b.open(ctx, call.UserID)
	if err != nil {
		return nil, err
	}

	var email *gmail.Email
	err = common.TrackGoogleAPI(ctx, b.metrics, instrumentation.ServiceGmail, instrumentation.OperationGet,
		func(ctx context.Context) error {
			var err error
			email, err = mailbox.LastReceived(ctx)
			return err
		})
	if err != nil {
		return nil, err
	}
	return map[string]any{"email": email}, nil
}

func (b *backends) send(ctx context.Context, call permission.Call) (any, error) {
	p := common.Params(call.Params)
	to, err := p.StringList("to")
	if err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("to is required")
	}
	subject, err := p.String("subject")
	if err != nil {
		return nil, err
	}
	body, err := p.RequiredString("body")
	if err != nil {
		return nil, err
	}
	threadID, err := p.String("thread_id")
	if err != nil {
		return nil, err
	}
	if subject == "" && threadID == "" {
		return nil, fmt.Errorf("subject is required")
	}

	mailbox, err := b.open(ctx, call.UserID)
	if err != nil {
		return nil, err
	}

	var id string
	err = common.TrackGoogleAPI(ctx, b.metrics, instrumentation.ServiceGmail, instrumentation.OperationSend,
		func(ctx context.Context) error {
			var err error
			id, err = mailbox.Send(ctx, gmail.OutgoingMessage{
				To:       to,
				Subject:  subject,
				Body:     body,
				ThreadID: threadID,
			})
			return err
		})
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "sent", "id": id}, nil
}
