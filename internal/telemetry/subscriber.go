// Package telemetry ingests machine progress reports from MQTT and
// archives them to InfluxDB. Devices (or their bridges) publish to
// laser/{jobId}/progress; each report is applied to the job lifecycle
// and written as a time-series point.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"laserops/internal/job"
)

const (
	// TopicProgress is the shared subscription filter for progress reports.
	TopicProgress = "laser/+/progress"
	qos           = 1

	applyTimeout = 10 * time.Second
)

// ProgressApplier applies a progress report to the job lifecycle.
// Implemented by the job service.
type ProgressApplier interface {
	UpdateProgress(ctx context.Context, id string, upd *job.ProgressUpdate) (*job.Job, error)
}

// TopicJobID extracts the job id from a topic "laser/{jobId}/progress".
func TopicJobID(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "laser" || parts[2] != "progress" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// progressReport is the wire payload devices publish. Absent fields are
// left untouched on the job.
type progressReport struct {
	ProgressPct      *float64 `json:"progressPct"`
	CurrentOperation *string  `json:"currentOperation"`
	Status           *string  `json:"status"`
}

// Subscriber consumes progress reports for the job service.
type Subscriber struct {
	client mqtt.Client
	jobs   ProgressApplier
	writer *Writer // nil disables archiving
	logger *slog.Logger
}

// NewSubscriber creates a subscriber over a connected MQTT client.
// writer may be nil when no InfluxDB archive is configured.
func NewSubscriber(client mqtt.Client, jobs ProgressApplier, writer *Writer) *Subscriber {
	return &Subscriber{
		client: client,
		jobs:   jobs,
		writer: writer,
		logger: slog.With("component", "telemetry"),
	}
}

// Start subscribes to the progress topic. Message handling runs on the
// MQTT client's callback goroutines.
func (s *Subscriber) Start() error {
	token := s.client.Subscribe(TopicProgress, qos, func(c mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", TopicProgress, token.Error())
	}
	s.logger.Info("Telemetry subscribed", "topic", TopicProgress)
	return nil
}

// Stop unsubscribes and disconnects the client.
func (s *Subscriber) Stop() {
	if token := s.client.Unsubscribe(TopicProgress); token.Wait() && token.Error() != nil {
		s.logger.Warn("Unsubscribe failed", "error", token.Error())
	}
	s.client.Disconnect(250)
}

// handle applies one raw report. Malformed topics and payloads are logged
// and dropped; a device must never be able to wedge the subscriber.
func (s *Subscriber) handle(topic string, payload []byte) {
	jobID, ok := TopicJobID(topic)
	if !ok {
		s.logger.Warn("Ignoring message on unexpected topic", "topic", topic)
		return
	}

	var report progressReport
	if err := json.Unmarshal(payload, &report); err != nil {
		s.logger.Warn("Malformed progress payload", "topic", topic, "error", err)
		return
	}

	upd := &job.ProgressUpdate{
		ProgressPct:      report.ProgressPct,
		CurrentOperation: report.CurrentOperation,
	}
	if report.Status != nil {
		status := job.Status(strings.ToUpper(*report.Status))
		upd.Status = &status
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	j, err := s.jobs.UpdateProgress(ctx, jobID, upd)
	if err != nil {
		s.logger.Warn("Progress report rejected", "jobId", jobID, "error", err)
		return
	}

	if s.writer != nil {
		if err := s.writer.WriteProgress(ctx, j); err != nil {
			s.logger.Warn("Telemetry archive write failed", "jobId", jobID, "error", err)
		}
	}
}

// NewClient builds and connects an MQTT client for the subscriber.
func NewClient(broker, clientID, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}
