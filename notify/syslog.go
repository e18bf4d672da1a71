package notify

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"tftpwatch/core"
	"tftpwatch/util"
)

// SyslogSink sends one UDP datagram per message in the form "<P> tag: text"
type SyslogSink struct {
	addr string
	tag  string
}

// NewSyslogSink creates a sink for the syslog server at host:port
func NewSyslogSink(host string, port int, tag string) *SyslogSink {
	if tag == "" {
		tag = "tftpwatch"
	}
	return &SyslogSink{addr: net.JoinHostPort(host, strconv.Itoa(port)), tag: tag}
}

// Name implements Sink
func (s *SyslogSink) Name() string { return "syslog" }

// Send implements Sink. The body is sent; the subject is only used when the
// body is empty.
func (s *SyslogSink) Send(ctx context.Context, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to dial syslog %s: %w", s.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}

	if _, err := conn.Write([]byte(s.format(msg))); err != nil {
		return fmt.Errorf("failed to write syslog datagram: %w", err)
	}
	return nil
}

func (s *SyslogSink) format(msg Message) string {
	priority := core.SyslogPriorityInfo
	if msg.Error {
		priority = core.SyslogPriorityError
	}
	text := msg.Body
	if text == "" {
		text = msg.Subject
	}
	return fmt.Sprintf("<%d> %s: %s", priority, s.tag, util.StripControl(text))
}
