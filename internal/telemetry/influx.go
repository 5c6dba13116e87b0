package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"laserops/internal/job"
)

const measurement = "laser_job_progress"

// Writer archives job progress to InfluxDB.
type Writer struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewWriter creates an InfluxDB write client. Caller should call Close when done.
func NewWriter(url, token, org, bucket string) *Writer {
	client := influxdb2.NewClient(url, token)
	return &Writer{
		client: client,
		api:    client.WriteAPIBlocking(org, bucket),
	}
}

// Close releases the InfluxDB client.
func (w *Writer) Close() {
	w.client.Close()
}

// Health checks that InfluxDB is reachable and the token is valid.
func (w *Writer) Health(ctx context.Context) error {
	_, err := w.client.Health(ctx)
	return err
}

// WriteProgress saves one progress observation for a job.
func (w *Writer) WriteProgress(ctx context.Context, j *job.Job) error {
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("jobId", j.ID).
		AddTag("machineId", j.MachineID).
		AddTag("status", string(j.Status)).
		AddField("progressPct", j.ProgressPct).
		AddField("operation", j.CurrentOperation).
		AddField("retryCount", j.RetryCount).
		SetTime(time.Now().UTC())
	if err := w.api.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}
