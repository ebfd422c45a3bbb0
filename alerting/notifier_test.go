package alerting

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
)

func TestValidateWebhookURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https_valid", "https://hooks.slack.com/test", false},
		{"http_valid", "http://example.com/webhook", false},
		{"ftp_blocked", "ftp://example.com", true},
		{"localhost_blocked", "http://localhost/webhook", true},
		{"loopback_blocked", "http://127.0.0.1/webhook", true},
		{"ipv6_loopback_blocked", "http://[::1]/webhook", true},
		{"metadata_blocked", "http://169.254.169.254/latest", true},
		{"private_10_blocked", "http://10.0.0.1/webhook", true},
		{"private_172_blocked", "http://172.16.0.1/webhook", true},
		{"private_192_blocked", "http://192.168.1.1/webhook", true},
		{"empty_string", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validateWebhookURL(c.url)
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewNotifierRejectsBadChannels(t *testing.T) {
	_, err := NewNotifier([]Channel{{Name: "hook", Kind: ChannelWebhook, Target: "http://10.1.2.3/x"}}, nil)
	assert.Error(t, err)
	_, err = NewNotifier([]Channel{{Name: "cmd", Kind: ChannelCommand, Target: "  "}}, nil)
	assert.Error(t, err)
	_, err = NewNotifier([]Channel{{Name: "pager", Kind: "pager"}}, nil)
	assert.Error(t, err)

	n, err := NewNotifier(nil, nil)
	require.NoError(t, err)
	assert.False(t, n.Enabled())
}

func TestNotifierLogChannelFiltersSeverity(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := logging.NewZapSink(zap.New(core))
	n, err := NewNotifier([]Channel{{Name: "log", Kind: ChannelLog, MinSeverity: model.AlertError}}, sink)
	require.NoError(t, err)

	low := model.AlertEvent{Kind: model.EventCreated, AlertID: "a", Type: model.AlertCPUHigh, Severity: model.AlertWarning,
		Alert: model.Alert{Message: "cpu warm"}}
	high := model.AlertEvent{Kind: model.EventCreated, AlertID: "b", Type: model.AlertCPUHigh, Severity: model.AlertCritical,
		Alert: model.Alert{Message: "cpu hot"}}

	n.Notify(low)
	n.Notify(high)
	n.Wait()

	entries := logs.FilterMessage("cpu hot").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "b", entries[0].ContextMap()["alert_id"])
	assert.Zero(t, logs.FilterMessage("cpu warm").Len())
}

func TestNotifierThrottles(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := logging.NewZapSink(zap.New(core))
	n, err := NewNotifier([]Channel{{Name: "log", Kind: ChannelLog, PerMinute: 1, Burst: 1}}, sink)
	require.NoError(t, err)

	ev := model.AlertEvent{Kind: model.EventCreated, Severity: model.AlertWarning, Alert: model.Alert{Message: "burst"}}
	for i := 0; i < 5; i++ {
		n.Notify(ev)
	}
	n.Wait()
	assert.Equal(t, 1, logs.FilterMessage("burst").Len())
}

func TestJournalAppendsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts", "journal.jsonl")
	j, err := NewJournal(path)
	require.NoError(t, err)

	e := New(&fakeHealth{}, nil, nil, Options{})
	defer e.Close()
	e.SetJournal(j)

	a, err := e.Trigger(model.AlertCustom, model.AlertWarning, "journaled", nil)
	require.NoError(t, err)
	_, err = e.Resolve(a.ID, "ops", "done")
	require.NoError(t, err)

	f, err := os.Open(j.Path())
	require.NoError(t, err)
	defer f.Close()

	var kinds []model.AlertEventKind
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev model.AlertEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		assert.Equal(t, a.ID, ev.AlertID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []model.AlertEventKind{model.EventCreated, model.EventResolved}, kinds)
}

func TestEngineNotifiesOnCreate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := logging.NewZapSink(zap.New(core))
	n, err := NewNotifier([]Channel{{Name: "log", Kind: ChannelLog}}, sink)
	require.NoError(t, err)

	e := New(&fakeHealth{}, nil, nil, Options{})
	e.SetNotifier(n)
	_, err = e.Trigger(model.AlertCustom, model.AlertWarning, "disk almost full", map[string]string{"mount": "/"})
	require.NoError(t, err)
	e.Close()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("disk almost full").Len() == 1
	}, time.Second, 10*time.Millisecond)
}
