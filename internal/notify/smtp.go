package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
)

// SMTPNotifier delivers messages through a plain SMTP relay.
type SMTPNotifier struct {
	addr     string
	auth     smtp.Auth
	sender   string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier configures delivery via the relay at addr (host:port).
// Username may be empty for relays without authentication.
func NewSMTPNotifier(addr, username, password, sender string) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr:     addr,
		auth:     auth,
		sender:   sender,
		sendMail: smtp.SendMail,
	}
}

// Send renders and delivers the message, wrapping any failure in a
// *DeliveryError.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}

	subject, body, err := Render(msg)
	if err != nil {
		return &DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}

	var payload strings.Builder
	fmt.Fprintf(&payload, "From: %s\r\n", n.sender)
	fmt.Fprintf(&payload, "To: %s\r\n", msg.RecipientAddr)
	fmt.Fprintf(&payload, "Subject: %s\r\n", subject)
	payload.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	payload.WriteString(body)

	if err := n.sendMail(n.addr, n.auth, n.sender, []string{msg.RecipientAddr}, []byte(payload.String())); err != nil {
		return &DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}
	return nil
}

// LogNotifier records notifications to the log instead of delivering them.
// Used when no SMTP relay is configured, e.g. local development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to the given logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the rendered message.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	subject, _, err := Render(msg)
	if err != nil {
		return &DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}
	n.logger.InfoContext(ctx, "notification suppressed (no SMTP relay configured)",
		"kind", string(msg.Kind),
		"recipient", msg.RecipientAddr,
		"subject", subject,
	)
	return nil
}
