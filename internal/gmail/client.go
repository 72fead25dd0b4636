package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// DefaultMaxResults is the search page size when none is given.
const DefaultMaxResults = 10

// Client wraps the Gmail Users service for one user.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a client over an authenticated HTTP client.
// Extra options are passed to the Gmail service, e.g. option.WithEndpoint in tests.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	msg, err := c.svc.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// Search returns up to maxResults messages matching query, newest first.
func (c *Client) Search(ctx context.Context, query string, maxResults int64) ([]Email, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	req := c.svc.Messages.List("me").MaxResults(maxResults).Context(ctx)
	if query != "" {
		req = req.Q(query)
	}
	res, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	emails := make([]Email, 0, len(res.Messages))
	for _, ref := range res.Messages {
		msg, err := c.GetMessage(ctx, ref.Id)
		if err != nil {
			return nil, err
		}
		emails = append(emails, toEmail(msg))
	}
	return emails, nil
}

// LastReceived returns the most recent inbox message, or nil when the inbox is empty.
func (c *Client) LastReceived(ctx context.Context) (*Email, error) {
	res, err := c.svc.Messages.List("me").LabelIds("INBOX").MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	if len(res.Messages) == 0 {
		return nil, nil
	}

	msg, err := c.GetMessage(ctx, res.Messages[0].Id)
	if err != nil {
		return nil, err
	}
	email := toEmail(msg)
	return &email, nil
}

// Send sends msg and returns the new message id. With a ThreadID the message
// is sent into that thread and threaded to its last message.
func (c *Client) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	if msg.ThreadID != "" {
		if err := c.threadReply(ctx, &msg); err != nil {
			return "", err
		}
	}

	raw, err := buildRawMessage(msg)
	if err != nil {
		return "", err
	}

	sent, err := c.svc.Messages.Send("me", &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: msg.ThreadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}

// threadReply fills the threading headers of msg from the thread's last message.
func (c *Client) threadReply(ctx context.Context, msg *OutgoingMessage) error {
	thread, err := c.svc.Threads.Get("me", msg.ThreadID).
		Format("metadata").
		MetadataHeaders("Message-ID", "References", "Subject").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get thread %s: %w", msg.ThreadID, err)
	}
	if len(thread.Messages) == 0 {
		return nil
	}

	last := thread.Messages[len(thread.Messages)-1]
	messageID := HeaderValue(last, "Message-ID")
	if messageID == "" {
		return nil
	}
	msg.InReplyTo = messageID
	if refs := HeaderValue(last, "References"); refs != "" {
		msg.References = refs + " " + messageID
	} else {
		msg.References = messageID
	}
	if msg.Subject == "" {
		msg.Subject = replySubject(HeaderValue(last, "Subject"))
	}
	return nil
}
