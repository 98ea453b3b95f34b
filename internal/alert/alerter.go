package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sensorstack/core/internal/events"
	"github.com/sensorstack/core/internal/infrastructure/config"
	"github.com/sensorstack/core/internal/infrastructure/kafka"
	"github.com/sensorstack/core/internal/infrastructure/logging"
)

// Consumer group ids, one per event stream.
const (
	statusGroupID = "alertd-status"
	powerGroupID  = "alertd-power"
)

// Severity prefixes for mail subjects.
const (
	severityInfo     = "[INFO]"
	severityWarning  = "[Warning]"
	severityCritical = "[CRITICAL]"
)

// Alerter consumes status and power events and mails notifications.
type Alerter struct {
	mailer   Mailer
	log      *logging.Logger
	throttle time.Duration

	status *kafka.Reader
	power  *kafka.Reader

	mu       sync.Mutex
	lastSent map[string]time.Time

	// now is replaceable for tests.
	now func() time.Time
}

// NewAlerter wires the alerter to the event bus and a mailer.
func NewAlerter(kafkaCfg config.KafkaConfig, throttle time.Duration, mailer Mailer, log *logging.Logger) *Alerter {
	return &Alerter{
		mailer:   mailer,
		log:      log,
		throttle: throttle,
		status:   kafka.NewReader(kafkaCfg, events.TopicDeviceStatus, statusGroupID),
		power:    kafka.NewReader(kafkaCfg, events.TopicPowerOutage, powerGroupID),
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run consumes both streams until the context is cancelled.
func (a *Alerter) Run(ctx context.Context) error {
	onError := func(err error) {
		a.log.Warn("alert event rejected", "error", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	run := func(r *kafka.Reader, handler kafka.Handler) {
		defer wg.Done()
		if err := r.Run(ctx, handler, onError); err != nil {
			errs <- fmt.Errorf("consuming %s: %w", r.Topic(), err)
		}
	}

	wg.Add(2)
	go run(a.status, a.handleStatus)
	go run(a.power, a.handlePower)
	wg.Wait()
	close(errs)

	return <-errs
}

// handleStatus mails a notification for one status transition.
// Online transitions are informational; anything critical alerts.
func (a *Alerter) handleStatus(_ context.Context, _, value []byte) error {
	var status events.DeviceStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return fmt.Errorf("decoding status event: %w", err)
	}
	if status.ClientID == "" || status.Status == "" {
		return fmt.Errorf("status event missing client_id or status")
	}

	severity := severityInfo
	if events.IsCriticalStatus(status.Status) {
		severity = severityCritical
	}

	subject := fmt.Sprintf("%s Device %s is %s", severity, status.ClientID, status.Status)
	body := fmt.Sprintf("Device %s reported status %s at %s.",
		status.ClientID, status.Status, status.Timestamp.Format(time.RFC3339))
	if status.Detail != "" {
		body += "\n\nDetail: " + status.Detail
	}

	return a.send(status.ClientID, subject, body)
}

// handlePower mails a notification for one power event. Outages warn,
// restorations inform.
func (a *Alerter) handlePower(_ context.Context, _, value []byte) error {
	var event events.PowerOutageEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decoding power event: %w", err)
	}
	if event.ClientID == "" || event.Event == "" {
		return fmt.Errorf("power event missing client_id or event")
	}

	severity := severityInfo
	verb := "restored"
	if event.Event == events.PowerOutage {
		severity = severityWarning
		verb = "lost"
	}

	subject := fmt.Sprintf("%s Device %s %s mains power", severity, event.ClientID, verb)
	body := fmt.Sprintf("Device %s reported mains power %s at %s.",
		event.ClientID, verb, event.Timestamp.Format(time.RFC3339))
	if event.BatteryPercent >= 0 {
		body += fmt.Sprintf("\n\nBattery remaining: %d%%.", event.BatteryPercent)
	}

	return a.send(event.ClientID, subject, body)
}

// send delivers one notification unless the device is throttled.
func (a *Alerter) send(clientID, subject, body string) error {
	if !a.shouldSend(clientID) {
		a.log.Debug("alert throttled", "client_id", clientID, "subject", subject)
		return nil
	}

	if err := a.mailer.Send(subject, body); err != nil {
		// Delivery failed; let the device alert again immediately.
		a.clearThrottle(clientID)
		return err
	}

	a.log.Info("alert sent", "client_id", clientID, "subject", subject)
	return nil
}

// shouldSend checks and arms the per-device throttle in one step.
func (a *Alerter) shouldSend(clientID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if last, ok := a.lastSent[clientID]; ok && now.Sub(last) < a.throttle {
		return false
	}
	a.lastSent[clientID] = now
	return true
}

// clearThrottle re-arms a device after a failed delivery.
func (a *Alerter) clearThrottle(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lastSent, clientID)
}

// Close stops the stream consumers.
func (a *Alerter) Close() error {
	var firstErr error
	for _, r := range []*kafka.Reader{a.status, a.power} {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
