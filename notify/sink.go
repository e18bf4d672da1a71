// Package notify delivers alerts and transfer notices to email, syslog and
// Redis through an asynchronous, fire-and-forget dispatcher.
package notify

import (
	"context"
	"fmt"
	"strings"

	"tftpwatch/core"
)

// Message is one outgoing notification
type Message struct {
	Subject string
	Body    string
	// Error selects the error priority on sinks that have one
	Error bool
	// Alert is set when the message reports an alert
	Alert *core.Alert
}

// Sink delivers messages to one destination
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// AlertMessage builds the message for an alert
func AlertMessage(alert *core.Alert) Message {
	return Message{
		Subject: alert.Subject,
		Body:    alert.Body,
		Error:   true,
		Alert:   alert,
	}
}

// TransferNotices builds the syslog notices for a finalized transfer: a
// summary line, plus an error line naming the daemon pid and reason when the
// transfer failed
func TransferNotices(rec core.TransferRecord) []Message {
	summary := fmt.Sprintf("Transfer %s | file=%s | ip=%s | size=%s bytes | status=%s",
		rec.Direction, rec.Filename, rec.ClientIP, rec.SizeString(), strings.ToUpper(string(rec.Status)))
	msgs := []Message{{Subject: summary, Body: summary, Error: rec.Failed()}}

	if rec.Failed() {
		detail := fmt.Sprintf("ERROR on %s transfer | file=%s | ip=%s | pid=%s | reason: %s",
			rec.Direction, rec.Filename, rec.ClientIP, rec.CorrelationID, rec.FailureReason)
		msgs = append(msgs, Message{Subject: detail, Body: detail, Error: true})
	}
	return msgs
}
