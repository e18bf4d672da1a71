package ingest

import (
	"strings"
	"time"

	"tftpwatch/core"
	"tftpwatch/metrics"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// DefaultMatchTimeout bounds a single regex evaluation on a log line
const DefaultMatchTimeout = 100 * time.Millisecond

// ParseResult holds at most one recognized event. Both fields nil means the
// line was not relevant.
type ParseResult struct {
	Request *core.RequestEvent
	Error   *core.ErrorEvent
}

// Empty reports whether nothing was recognized
func (r ParseResult) Empty() bool {
	return r.Request == nil && r.Error == nil
}

// Parser turns a daemon log line into a request or error event
type Parser interface {
	Parse(line string, at time.Time) ParseResult
}

// tftpd-hpa log shapes, tried in order
const (
	requestPattern = `in\.tftpd\[(\d+)\]:\s+(WRQ|RRQ)\s+from\s+([\d\.]+).*filename\s+(\S+)`
	refusedPattern = `in\.tftpd\[(\d+)\].*read:\s+Connection refused`
	nakPattern     = `in\.tftpd\[(\d+)\].*NAK`
)

// TFTPDParser recognizes tftpd-hpa syslog lines. The daemon PID is used as
// the correlation id.
type TFTPDParser struct {
	request *regexp2.Regexp
	refused *regexp2.Regexp
	nak     *regexp2.Regexp
	logger  *zap.SugaredLogger
}

// NewTFTPDParser compiles the tftpd-hpa patterns with the given match timeout.
// A non-positive timeout uses DefaultMatchTimeout.
func NewTFTPDParser(matchTimeout time.Duration, logger *zap.SugaredLogger) *TFTPDParser {
	if matchTimeout <= 0 {
		matchTimeout = DefaultMatchTimeout
	}
	compile := func(pattern string) *regexp2.Regexp {
		re := regexp2.MustCompile(pattern, regexp2.None)
		re.MatchTimeout = matchTimeout
		return re
	}
	return &TFTPDParser{
		request: compile(requestPattern),
		refused: compile(refusedPattern),
		nak:     compile(nakPattern),
		logger:  logger,
	}
}

// Parse implements Parser
func (p *TFTPDParser) Parse(line string, at time.Time) ParseResult {
	if m := p.match(p.request, line); m != nil {
		direction, err := core.DirectionFromRequestType(m.GroupByNumber(2).String())
		if err != nil {
			metrics.LinesParsed.WithLabelValues("ignored").Inc()
			return ParseResult{}
		}
		metrics.LinesParsed.WithLabelValues("request").Inc()
		return ParseResult{Request: &core.RequestEvent{
			CorrelationID: m.GroupByNumber(1).String(),
			Direction:     direction,
			Filename:      strings.TrimPrefix(m.GroupByNumber(4).String(), "/"),
			ClientIP:      m.GroupByNumber(3).String(),
			SeenAt:        at,
		}}
	}

	if m := p.match(p.refused, line); m != nil {
		metrics.LinesParsed.WithLabelValues("error").Inc()
		return ParseResult{Error: &core.ErrorEvent{
			CorrelationID: m.GroupByNumber(1).String(),
			Reason:        core.ReasonConnectionRefused,
			SeenAt:        at,
		}}
	}

	if m := p.match(p.nak, line); m != nil {
		metrics.LinesParsed.WithLabelValues("error").Inc()
		return ParseResult{Error: &core.ErrorEvent{
			CorrelationID: m.GroupByNumber(1).String(),
			Reason:        core.ReasonNegativeAck,
			SeenAt:        at,
		}}
	}

	metrics.LinesParsed.WithLabelValues("ignored").Inc()
	return ParseResult{}
}

func (p *TFTPDParser) match(re *regexp2.Regexp, line string) *regexp2.Match {
	m, err := re.FindStringMatch(line)
	if err != nil {
		// regexp2 only errors on timeout
		metrics.LinesParsed.WithLabelValues("timeout").Inc()
		p.logger.Debugw("Log line match timed out", "pattern", re.String(), "error", err)
		return nil
	}
	return m
}
