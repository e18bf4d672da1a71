package core

import "time"

const (
	// DefaultGracePeriod is how long a matched transfer waits for a late error line
	DefaultGracePeriod = 1 * time.Second
	// DefaultTickInterval is the correlation matching/finalization period
	DefaultTickInterval = 200 * time.Millisecond
	// DefaultMaxUnmatchedAge bounds how long unmatched events are retained
	DefaultMaxUnmatchedAge = 5 * time.Minute

	// DefaultRateLimitThreshold is the per-client request count that triggers an alert when exceeded
	DefaultRateLimitThreshold = 15
	// DefaultRateLimitWindow is the sliding window for the rate-limit rule
	DefaultRateLimitWindow = 60 * time.Second
	// DefaultCheckInterval is the poll interval of the durable record feed
	DefaultCheckInterval = 10 * time.Second

	// SyslogPriorityError is the syslog priority used for error-level messages (user.err)
	SyslogPriorityError = 11
	// SyslogPriorityInfo is the syslog priority used for info-level messages (user.notice)
	SyslogPriorityInfo = 13
)
