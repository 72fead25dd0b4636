package gmail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Defaults for missing headers.
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown Sender"
	NoDate        = "No Date"
)

// Email is the summary returned by Search and LastReceived.
type Email struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Subject  string `json:"subject"`
	Sender   string `json:"sender"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
}

// OutgoingMessage is a message to send. ThreadID makes it a reply.
type OutgoingMessage struct {
	To       []string
	Subject  string
	Body     string
	ThreadID string

	// Set from the thread's last message when replying.
	InReplyTo  string
	References string
}

func toEmail(m *gmail.Message) Email {
	return Email{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Subject:  headerOr(m, "Subject", NoSubject),
		Sender:   headerOr(m, "From", UnknownSender),
		Date:     headerOr(m, "Date", NoDate),
		Snippet:  m.Snippet,
		Body:     plainBody(m.Payload),
	}
}

// HeaderValue extracts a header value from a Gmail message.
// Header names are matched case-insensitively.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

func headerOr(m *gmail.Message, header, fallback string) string {
	if v := HeaderValue(m, header); v != "" {
		return v
	}
	return fallback
}

// plainBody returns the first text/plain body found walking the MIME tree.
// A single-part message uses its own body regardless of type.
func plainBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if len(part.Parts) == 0 {
		return decodeBody(part.Body)
	}

	var body string
	walkParts(part, func(p *gmail.MessagePart) bool {
		if p.MimeType == "text/plain" && p.Body != nil && p.Body.Data != "" {
			body = decodeBody(p.Body)
			return false
		}
		return true
	})
	return body
}

// walkParts visits part and its descendants depth-first until fn returns false.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart) bool) bool {
	if part == nil {
		return true
	}
	if !fn(part) {
		return false
	}
	for _, sub := range part.Parts {
		if !walkParts(sub, fn) {
			return false
		}
	}
	return true
}

func decodeBody(b *gmail.MessagePartBody) string {
	if b == nil || b.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(b.Data)
	if err != nil {
		// Gmail sometimes omits padding.
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(b.Data, "="))
		if err != nil {
			return ""
		}
	}
	return string(data)
}

// encodeRFC2047 encodes non-ASCII header values such as subjects with umlauts.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// buildRawMessage renders msg as an RFC 2822 message.
func buildRawMessage(msg OutgoingMessage) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if msg.Body == "" {
		return "", fmt.Errorf("body is required")
	}

	var b strings.Builder
	b.WriteString("To: ")
	b.WriteString(strings.Join(msg.To, ", "))
	b.WriteString("\r\n")

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(msg.Subject))
	b.WriteString("\r\n")

	if msg.InReplyTo != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(msg.InReplyTo)
		b.WriteString("\r\n")
	}
	if msg.References != "" {
		b.WriteString("References: ")
		b.WriteString(msg.References)
		b.WriteString("\r\n")
	}

	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return b.String(), nil
}

// replySubject prefixes subject with "Re: " unless it already has it.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// SplitAddresses splits a comma-separated recipient list.
func SplitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
