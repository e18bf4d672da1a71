package notify

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"tftpwatch/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() core.TransferRecord {
	return core.TransferRecord{
		ID:            12,
		Filename:      "configs/switch01.cfg",
		ClientIP:      "192.168.1.20",
		Size:          core.Int64Ptr(2048),
		Direction:     core.DirectionUpload,
		Status:        core.TransferSuccess,
		CorrelationID: "3141",
		OccurredAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestTransferNotices_Success(t *testing.T) {
	msgs := TransferNotices(testRecord())
	require.Len(t, msgs, 1)
	assert.Equal(t, "Transfer upload | file=configs/switch01.cfg | ip=192.168.1.20 | size=2048 bytes | status=SUCCESS", msgs[0].Body)
	assert.False(t, msgs[0].Error)
}

func TestTransferNotices_FailureAddsDetail(t *testing.T) {
	rec := testRecord()
	rec.Direction = core.DirectionDownload
	rec.Status = core.TransferFailed
	rec.FailureReason = core.ReasonConnectionRefused
	rec.Size = nil

	msgs := TransferNotices(rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Transfer download | file=configs/switch01.cfg | ip=192.168.1.20 | size=N/A bytes | status=FAILED", msgs[0].Body)
	assert.True(t, msgs[0].Error)
	assert.Equal(t, "ERROR on download transfer | file=configs/switch01.cfg | ip=192.168.1.20 | pid=3141 | reason: connection refused", msgs[1].Body)
	assert.True(t, msgs[1].Error)
}

func TestSyslogSink_SendsDatagram(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	sink := NewSyslogSink("127.0.0.1", port, "tftpwatch")
	assert.Equal(t, "syslog", sink.Name())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, sink.Send(ctx, Message{Body: "transfer failed", Error: true}))
	require.NoError(t, sink.Send(ctx, Message{Subject: "only subject"}))

	buf := make([]byte, 1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))

	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "<11> tftpwatch: transfer failed", string(buf[:n]))

	n, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "<13> tftpwatch: only subject", string(buf[:n]))
}

func TestSyslogSink_DefaultTag(t *testing.T) {
	sink := NewSyslogSink("127.0.0.1", 514, "")
	assert.Equal(t, "<13> tftpwatch: hello", sink.format(Message{Body: "hello"}))
}

func TestEmailSink_BuildMessage(t *testing.T) {
	sink := NewEmailSink(EmailConfig{
		Server:    "smtp.example.com",
		Port:      587,
		Sender:    "monitor@example.com",
		Recipient: "ops@example.com",
	})
	sink.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	msg := sink.buildMessage(Message{
		Subject: "Unauthorized IP\r\nBcc: evil@example.com",
		Body:    "line one\nline two",
	})

	assert.Contains(t, msg, "From: monitor@example.com\r\n")
	assert.Contains(t, msg, "To: ops@example.com\r\n")
	assert.Contains(t, msg, "Subject: Unauthorized IP  Bcc: evil@example.com\r\n")
	assert.Contains(t, msg, "Date: Sat, 14 Mar 2026 09:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two\r\n"))
}

func TestEmailSink_RequiresRecipient(t *testing.T) {
	sink := NewEmailSink(EmailConfig{Server: "127.0.0.1", Port: 1})
	assert.Error(t, sink.Send(context.Background(), Message{Subject: "x"}))
}

func TestEmailSink_ConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sink := NewEmailSink(EmailConfig{Server: "127.0.0.1", Port: port, Recipient: "ops@example.com"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = sink.Send(ctx, Message{Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to SMTP server")
}

func TestRedisSink_PublishesAlert(t *testing.T) {
	mr := miniredis.RunT(t)

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ps := sub.Subscribe(ctx, "tftpwatch:alerts")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisSink(mr.Addr(), "", 0, "tftpwatch:alerts")
	defer sink.Close()
	require.NoError(t, sink.Ping(ctx))

	alert, err := core.NewAlert(core.AlertUnauthorizedSource, "Unauthorized IP", "body", testRecord(), time.Now())
	require.NoError(t, err)
	require.NoError(t, sink.Send(ctx, AlertMessage(alert)))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var payload redisPayload
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "Unauthorized IP", payload.Subject)
	assert.True(t, payload.Error)
	require.NotNil(t, payload.Alert)
	assert.Equal(t, alert.ID, payload.Alert.ID)
	assert.Equal(t, int64(12), payload.Alert.TransferID)
}

func TestRedisSink_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := NewRedisSink(mr.Addr(), "", 0, "tftpwatch:alerts")
	defer sink.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, sink.Send(ctx, Message{Subject: "x"}))
}
