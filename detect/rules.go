package detect

import (
	"fmt"
	"time"

	"tftpwatch/core"
)

// dateLayout is the timestamp format used in alert bodies
const dateLayout = "2006-01-02 15:04:05"

// Detector is one anomaly rule. Check returns an alert when the record
// violates the rule, nil otherwise.
type Detector interface {
	Kind() core.AlertKind
	Check(rec core.TransferRecord, now time.Time) (*core.Alert, error)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// UnauthorizedSourceDetector alerts on transfers from clients outside the
// allow-list. An empty allow-list authorizes nobody.
type UnauthorizedSourceDetector struct {
	allowed map[string]struct{}
}

// NewUnauthorizedSourceDetector creates the allow-list rule
func NewUnauthorizedSourceDetector(authorizedIPs []string) *UnauthorizedSourceDetector {
	return &UnauthorizedSourceDetector{allowed: toSet(authorizedIPs)}
}

// Kind implements Detector
func (d *UnauthorizedSourceDetector) Kind() core.AlertKind {
	return core.AlertUnauthorizedSource
}

// Check implements Detector
func (d *UnauthorizedSourceDetector) Check(rec core.TransferRecord, now time.Time) (*core.Alert, error) {
	if _, ok := d.allowed[rec.ClientIP]; ok {
		return nil, nil
	}
	subject := fmt.Sprintf("SECURITY ALERT - Unauthorized IP: %s", rec.ClientIP)
	body := fmt.Sprintf("ALERT: UNAUTHORIZED IP\nSource IP: %s\nFile: %s\nTransfer ID: %d\nDate: %s",
		rec.ClientIP, rec.Filename, rec.ID, now.Format(dateLayout))
	return core.NewAlert(d.Kind(), subject, body, rec, now)
}

// CriticalResourceDetector alerts on transfers touching a critical file
type CriticalResourceDetector struct {
	critical map[string]struct{}
}

// NewCriticalResourceDetector creates the critical file rule
func NewCriticalResourceDetector(criticalFiles []string) *CriticalResourceDetector {
	return &CriticalResourceDetector{critical: toSet(criticalFiles)}
}

// Kind implements Detector
func (d *CriticalResourceDetector) Kind() core.AlertKind {
	return core.AlertCriticalResourceAccess
}

// Check implements Detector
func (d *CriticalResourceDetector) Check(rec core.TransferRecord, now time.Time) (*core.Alert, error) {
	if _, ok := d.critical[rec.Filename]; !ok {
		return nil, nil
	}
	subject := fmt.Sprintf("ALERT - Critical File Access: %s", rec.Filename)
	body := fmt.Sprintf("ALERT: CRITICAL FILE ACCESS\nFile: %s\nSource IP: %s\nTransfer ID: %d\nDate: %s",
		rec.Filename, rec.ClientIP, rec.ID, now.Format(dateLayout))
	return core.NewAlert(d.Kind(), subject, body, rec, now)
}

// RateLimitDetector alerts when a client exceeds threshold requests inside
// the tracker window. The client's window is emptied after each alert so a
// sustained burst alerts once per threshold crossing.
type RateLimitDetector struct {
	threshold int
	tracker   *RateTracker
}

// NewRateLimitDetector creates the sliding window rule
func NewRateLimitDetector(threshold int, tracker *RateTracker) *RateLimitDetector {
	return &RateLimitDetector{threshold: threshold, tracker: tracker}
}

// Kind implements Detector
func (d *RateLimitDetector) Kind() core.AlertKind {
	return core.AlertRateLimitExceeded
}

// Check implements Detector
func (d *RateLimitDetector) Check(rec core.TransferRecord, now time.Time) (*core.Alert, error) {
	at := rec.OccurredAt
	if at.IsZero() {
		at = now
	}
	count := d.tracker.Record(rec.ClientIP, at)
	if count <= d.threshold {
		return nil, nil
	}
	d.tracker.Reset(rec.ClientIP)

	window := d.tracker.Window()
	subject := fmt.Sprintf("ALERT - Rate Limit Exceeded: %s", rec.ClientIP)
	body := fmt.Sprintf("ALERT: TOO MANY REQUESTS\nSource IP: %s\nRequests: %d in %d seconds\nAllowed threshold: %d requests per window\nLast file: %s\nTransfer ID: %d\nDate: %s",
		rec.ClientIP, count, int(window.Seconds()), d.threshold, rec.Filename, rec.ID, now.Format(dateLayout))
	return core.NewAlert(d.Kind(), subject, body, rec, now)
}
