package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"tftpwatch/metrics"

	"go.uber.org/zap"
)

// SyslogSource receives daemon log lines forwarded by the local syslog
// daemon over UDP. Each datagram may carry several newline separated lines.
type SyslogSource struct {
	host   string
	port   int
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn net.PacketConn
}

// NewSyslogSource creates a UDP syslog receiver. Port 0 picks a free port.
func NewSyslogSource(host string, port int, logger *zap.SugaredLogger) *SyslogSource {
	return &SyslogSource{host: host, port: port, logger: logger}
}

// Name implements LineSource
func (s *SyslogSource) Name() string {
	return "syslog"
}

// Listen binds the UDP socket. Run calls it when it has not been called yet.
func (s *SyslogSource) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	if s.port < 0 || s.port > 65535 {
		return fmt.Errorf("invalid port number: %d", s.port)
	}
	conn, err := net.ListenPacket("udp", net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port)))
	if err != nil {
		return fmt.Errorf("%w: failed to start syslog UDP listener: %v", ErrSourceClosed, err)
	}
	s.conn = conn
	return nil
}

// LocalAddr returns the bound address, nil before Listen
func (s *SyslogSource) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run implements LineSource
func (s *SyslogSource) Run(ctx context.Context, out chan<- string) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	s.logger.Infow("Syslog UDP listener started", "addr", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buffer := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%w: syslog socket closed", ErrSourceClosed)
			}
			s.logger.Errorw("Syslog UDP read error", "error", err)
			continue
		}
		for _, line := range strings.Split(string(buffer[:n]), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			metrics.EventsIngested.WithLabelValues("syslog").Inc()
			if !send(ctx, out, line) {
				return nil
			}
		}
	}
}
