package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ftahirops/xdiag/logging"
	"github.com/ftahirops/xdiag/model"
)

// Channel kinds.
const (
	ChannelLog     = "log"
	ChannelWebhook = "webhook"
	ChannelCommand = "command"
)

// Channel is one notification destination.
type Channel struct {
	Name        string
	Kind        string
	Target      string // webhook URL or shell command
	MinSeverity model.AlertSeverity
	PerMinute   float64 // 0 means unlimited
	Burst       int
}

type channel struct {
	Channel
	limiter *rate.Limiter
}

// Notifier fans alert events out to channels asynchronously.
type Notifier struct {
	channels []*channel
	client   *http.Client
	log      logging.Sink
	wg       sync.WaitGroup
}

// NewNotifier validates every channel and returns a notifier for them.
func NewNotifier(chs []Channel, sink logging.Sink) (*Notifier, error) {
	n := &Notifier{
		client: &http.Client{Timeout: 5 * time.Second},
		log:    logging.Safe(sink),
	}
	for _, c := range chs {
		switch c.Kind {
		case ChannelLog:
		case ChannelWebhook:
			if err := validateWebhookURL(c.Target); err != nil {
				return nil, fmt.Errorf("channel %q: %w", c.Name, err)
			}
		case ChannelCommand:
			if strings.TrimSpace(c.Target) == "" {
				return nil, fmt.Errorf("channel %q: empty command", c.Name)
			}
		default:
			return nil, fmt.Errorf("channel %q: unknown kind %q", c.Name, c.Kind)
		}
		lim := rate.NewLimiter(rate.Inf, 0)
		if c.PerMinute > 0 {
			burst := c.Burst
			if burst < 1 {
				burst = 1
			}
			lim = rate.NewLimiter(rate.Limit(c.PerMinute/60), burst)
		}
		n.channels = append(n.channels, &channel{Channel: c, limiter: lim})
	}
	return n, nil
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.channels) > 0
}

// Notify sends ev to every channel whose minimum severity it meets and whose
// rate budget allows. It never blocks on delivery.
func (n *Notifier) Notify(ev model.AlertEvent) {
	if !n.Enabled() {
		return
	}
	for _, c := range n.channels {
		if ev.Severity < c.MinSeverity {
			continue
		}
		if !c.limiter.Allow() {
			n.log.LogEvent(logging.LevelDebug, "alerting", c.Name, "notification throttled",
				map[string]string{"alert_id": ev.AlertID})
			continue
		}
		n.wg.Add(1)
		go func(c *channel) {
			defer n.wg.Done()
			if err := n.send(c, ev); err != nil {
				n.log.LogError(fmt.Sprintf("notify %s failed", c.Name), err)
			}
		}(c)
	}
}

// Wait blocks until in-flight sends finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (n *Notifier) send(c *channel, ev model.AlertEvent) error {
	switch c.Kind {
	case ChannelLog:
		n.log.LogEvent(logLevel(ev.Severity), "alert", string(ev.Type), ev.Alert.Message, map[string]string{
			"event":    string(ev.Kind),
			"alert_id": ev.AlertID,
			"severity": ev.Severity.String(),
		})
		return nil
	case ChannelWebhook:
		return n.postWebhook(c.Target, ev)
	case ChannelCommand:
		return runCommand(c.Target, ev)
	}
	return fmt.Errorf("unknown channel kind %q", c.Kind)
}

func logLevel(s model.AlertSeverity) logging.Level {
	switch s {
	case model.AlertCritical, model.AlertError:
		return logging.LevelError
	case model.AlertWarning:
		return logging.LevelWarn
	}
	return logging.LevelInfo
}

func payload(ev model.AlertEvent) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event": ev.Kind,
		"alert": ev.Alert,
		"ts":    ev.Timestamp.Format(time.RFC3339),
	})
}

func (n *Notifier) postWebhook(target string, ev model.AlertEvent) error {
	data, err := payload(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func runCommand(command string, ev model.AlertEvent) error {
	data, err := payload(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"XDIAG_EVENT="+string(ev.Kind),
		"XDIAG_ALERT_TYPE="+string(ev.Type),
		"XDIAG_SEVERITY="+ev.Severity.String(),
		"XDIAG_PAYLOAD="+string(data),
	)
	return cmd.Run()
}

// validateWebhookURL requires http(s) and rejects loopback, private,
// link-local and cloud metadata hosts.
func validateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	switch host {
	case "localhost", "metadata.google.internal":
		return fmt.Errorf("webhook URL host %q is blocked", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}
