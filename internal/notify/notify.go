package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Message is one outgoing notification. Delivery is best-effort and
// never part of the transition that produced it.
type Message struct {
	Recipients []string `json:"recipients"`
	ReplyTo    string   `json:"reply_to,omitempty"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPNotifier delivers mail through a plain SMTP server. All settings
// are injected at construction; there is no ambient environment state.
type SMTPNotifier struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if n.Username != "" {
		host := n.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", n.Username, n.Password, host)
	}
	return smtp.SendMail(n.Addr, auth, n.From, msg.Recipients, []byte(b.String()))
}

// LogNotifier just logs. Used when no mail server is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	log.Printf("notify %v: %s", msg.Recipients, msg.Subject)
	return nil
}
