package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AlertKind identifies the rule that raised an alert
type AlertKind string

const (
	// AlertUnauthorizedSource is raised for transfers from clients outside the allow-list
	AlertUnauthorizedSource AlertKind = "unauthorized_source"
	// AlertCriticalResourceAccess is raised for transfers touching a critical file
	AlertCriticalResourceAccess AlertKind = "critical_resource_access"
	// AlertRateLimitExceeded is raised when a client exceeds the request threshold in the window
	AlertRateLimitExceeded AlertKind = "rate_limit_exceeded"
)

// IsValid checks if the kind is known
func (k AlertKind) IsValid() bool {
	switch k {
	case AlertUnauthorizedSource, AlertCriticalResourceAccess, AlertRateLimitExceeded:
		return true
	default:
		return false
	}
}

// Severity returns the severity label used for metrics and filtering
func (k AlertKind) Severity() string {
	switch k {
	case AlertUnauthorizedSource, AlertCriticalResourceAccess:
		return "high"
	case AlertRateLimitExceeded:
		return "medium"
	default:
		return "low"
	}
}

// Alert is raised by the anomaly engine and handed to delivery sinks
type Alert struct {
	ID         string    `json:"id"`
	Kind       AlertKind `json:"kind"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ClientIP   string    `json:"client_ip"`
	Filename   string    `json:"filename"`
	TransferID int64     `json:"transfer_id"`
	RaisedAt   time.Time `json:"raised_at"`
}

var (
	// ErrInvalidAlertKind is returned when an alert is built with an unknown kind
	ErrInvalidAlertKind = errors.New("invalid alert kind")
	// ErrEmptyAlertSubject is returned when an alert has no subject
	ErrEmptyAlertSubject = errors.New("alert subject cannot be empty")
)

// NewAlert creates an alert about a transfer record
func NewAlert(kind AlertKind, subject, body string, rec TransferRecord, raisedAt time.Time) (*Alert, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidAlertKind
	}
	if subject == "" {
		return nil, ErrEmptyAlertSubject
	}
	return &Alert{
		ID:         uuid.New().String(),
		Kind:       kind,
		Subject:    subject,
		Body:       body,
		ClientIP:   rec.ClientIP,
		Filename:   rec.Filename,
		TransferID: rec.ID,
		RaisedAt:   raisedAt,
	}, nil
}
