// Package mail sends digest and verification emails.
package mail

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/pkg/mailjet"
)

// Message is one outgoing email. Text is the plain alternative to HTML.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender dispatches a message. A nil error means the provider accepted it.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailjetSender sends through the Mailjet v3.1 API.
type MailjetSender struct {
	client mailjet.Client
	from   mailjet.Address
}

// NewMailjetSender creates a MailjetSender sending as fromName <from>.
func NewMailjetSender(client mailjet.Client, from, fromName string) *MailjetSender {
	return &MailjetSender{
		client: client,
		from:   mailjet.Address{Email: from, Name: fromName},
	}
}

// Send implements Sender.
func (s *MailjetSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return eris.New("mail: empty recipient")
	}
	_, err := s.client.Send(ctx, mailjet.SendRequest{
		Messages: []mailjet.Message{{
			From:     s.from,
			To:       []mailjet.Address{{Email: msg.To}},
			Subject:  msg.Subject,
			TextPart: msg.Text,
			HTMLPart: msg.HTML,
		}},
	})
	if err != nil {
		return eris.Wrapf(err, "mail: send to %s", msg.To)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. It backs
// the "log" provider for local runs.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, msg Message) error {
	zap.L().Info("mail: message (log provider)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
		zap.String("text", msg.Text),
	)
	return nil
}
