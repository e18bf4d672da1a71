package detect

import (
	"testing"
	"time"

	"tftpwatch/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnauthorizedSourceDetector(t *testing.T) {
	d := NewUnauthorizedSourceDetector([]string{"10.0.0.5"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alert, err := d.Check(core.TransferRecord{ID: 3, ClientIP: "10.0.0.9", Filename: "a.cfg"}, now)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, core.AlertUnauthorizedSource, alert.Kind)
	assert.Contains(t, alert.Subject, "10.0.0.9")
	assert.Contains(t, alert.Body, "Transfer ID: 3")
	assert.Contains(t, alert.Body, "2026-03-01 12:00:00")

	alert, err = d.Check(core.TransferRecord{ClientIP: "10.0.0.5"}, now)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestCriticalResourceDetector(t *testing.T) {
	d := NewCriticalResourceDetector([]string{"secret.cfg"})

	alert, err := d.Check(core.TransferRecord{ClientIP: "10.0.0.5", Filename: "secret.cfg"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, core.AlertCriticalResourceAccess, alert.Kind)
	assert.Equal(t, "secret.cfg", alert.Filename)

	alert, err = d.Check(core.TransferRecord{ClientIP: "10.0.0.5", Filename: "normal.txt"}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, alert)
}

// TestRateLimitDetector_FiresOnceAndResets checks that a burst alerts once and refires only after re-accumulating
func TestRateLimitDetector_FiresOnceAndResets(t *testing.T) {
	tracker, err := NewRateTracker(60*time.Second, 100)
	require.NoError(t, err)
	d := NewRateLimitDetector(3, tracker)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fired := 0
	for i := 0; i < 4; i++ {
		rec := core.TransferRecord{ClientIP: "1.2.3.4", Filename: "f", OccurredAt: base.Add(time.Duration(i) * time.Second)}
		alert, err := d.Check(rec, rec.OccurredAt)
		require.NoError(t, err)
		if alert != nil {
			fired++
			assert.Equal(t, 3, i, "alert fires on the 4th record")
			assert.Contains(t, alert.Body, "Requests: 4 in 60 seconds")
		}
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, tracker.Count("1.2.3.4", base.Add(3*time.Second)), "window reset after alert")

	// The 5th request right after does not refire
	rec := core.TransferRecord{ClientIP: "1.2.3.4", OccurredAt: base.Add(5 * time.Second)}
	alert, err := d.Check(rec, rec.OccurredAt)
	require.NoError(t, err)
	assert.Nil(t, alert)

	// Three more re-cross the threshold from zero
	for i := 6; i < 8; i++ {
		rec := core.TransferRecord{ClientIP: "1.2.3.4", OccurredAt: base.Add(time.Duration(i) * time.Second)}
		alert, err := d.Check(rec, rec.OccurredAt)
		require.NoError(t, err)
		assert.Nil(t, alert)
	}
	rec = core.TransferRecord{ClientIP: "1.2.3.4", OccurredAt: base.Add(8 * time.Second)}
	alert, err = d.Check(rec, rec.OccurredAt)
	require.NoError(t, err)
	assert.NotNil(t, alert)
}

func TestRateLimitDetector_SpreadOutRequests(t *testing.T) {
	tracker, err := NewRateTracker(60*time.Second, 100)
	require.NoError(t, err)
	d := NewRateLimitDetector(3, tracker)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rec := core.TransferRecord{ClientIP: "1.2.3.4", OccurredAt: base.Add(time.Duration(i) * 30 * time.Second)}
		alert, err := d.Check(rec, rec.OccurredAt)
		require.NoError(t, err)
		assert.Nil(t, alert, "at most two requests ever share a window")
	}
}
