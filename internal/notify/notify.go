// Package notify is the outbound notification port of the lending core.
// Delivery failures surface as *DeliveryError and are always swallowed (and
// logged) by the caller; a broken mail relay must never block lending.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// Kind selects the message template.
type Kind string

const (
	// KindCheckoutReceipt confirms a successful checkout with the due date.
	KindCheckoutReceipt Kind = "checkout_receipt"
	// KindReminder warns that a loan is due soon.
	KindReminder Kind = "reminder"
	// KindExpiration informs the patron a loan expired automatically.
	KindExpiration Kind = "expiration"
	// KindWaitlistAvailable tells the next waitlisted patron a copy freed up.
	KindWaitlistAvailable Kind = "waitlist_available"
)

// Message is one notification to one recipient. Data keys feed the
// template for the kind; see templates below for the expected keys.
type Message struct {
	Kind          Kind
	RecipientName string
	RecipientAddr string
	Data          map[string]string
}

// Notifier sends messages. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError reports a failed send attempt.
type DeliveryError struct {
	Kind      Kind
	Recipient string
	Err       error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: delivery of %s to %s failed: %v", e.Kind, e.Recipient, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var subjects = map[Kind]string{
	KindCheckoutReceipt:   `Your loan of "{{.Title}}"`,
	KindReminder:          `Reminder: "{{.Title}}" is due soon`,
	KindExpiration:        `Your loan of "{{.Title}}" has expired`,
	KindWaitlistAvailable: `"{{.Title}}" is now available`,
}

var bodies = map[Kind]string{
	KindCheckoutReceipt: `Dear {{.Name}},

You have checked out "{{.Title}}" by {{.Author}}. The loan is due on {{.DueDate}}.

Your personalized copy is available from your patron dashboard. Each digital
copy is loaned to one patron at a time; please do not share the file.

{{.Library}}`,
	KindReminder: `Dear {{.Name}},

Your loan of "{{.Title}}" is due on {{.DueDate}}. Return it early from your
patron dashboard, or renew it if renewals remain. Unreturned loans expire
automatically on the due date.

{{.Library}}`,
	KindExpiration: `Dear {{.Name}},

Your loan of "{{.Title}}" reached its due date and has expired. The copy has
been released back into circulation. You are welcome to borrow it again when
a copy is available.

{{.Library}}`,
	KindWaitlistAvailable: `Dear {{.Name}},

A copy of "{{.Title}}" is now available. Waitlisted titles are offered
first come, first served, so borrow it soon from the catalog.

{{.Library}}`,
}

// Render produces the subject and body for a message. Unknown kinds fail so
// a template mismatch is caught in tests rather than silently sent blank.
func Render(msg Message) (subject, body string, err error) {
	subjectTmpl, ok := subjects[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown message kind %q", msg.Kind)
	}

	data := map[string]string{"Name": msg.RecipientName}
	for key, value := range msg.Data {
		data[key] = value
	}

	subject, err = render("subject", subjectTmpl, data)
	if err != nil {
		return "", "", err
	}
	body, err = render("body", bodies[msg.Kind], data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func render(name, text string, data map[string]string) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("notify: bad template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: template execution failed: %w", err)
	}
	return buf.String(), nil
}
