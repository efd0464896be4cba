package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/infra/logger"
)

// InfluxSink writes routing events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordAssignment writes the routing outcome of a task.
func (s *InfluxSink) RecordAssignment(r coremetrics.AssignmentResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_assignment").
		AddTag("task_type", r.TaskType.String()).
		AddTag("priority", r.Priority.String()).
		AddTag("zone", string(r.Zone)).
		AddTag("assigned", strconv.FormatBool(r.Assigned)).
		AddTag("rerouted", strconv.FormatBool(r.Rerouted)).
		AddTag("component", "router")
	if r.WorkerID != "" {
		p = p.AddTag("worker_id", r.WorkerID)
	}
	p = p.AddField("task_id", r.TaskID).
		AddField("score", round3(r.Score)).
		AddField("travel_seconds", r.TravelSeconds).
		AddField("candidates", r.Candidates)
	if r.Reason != "" {
		p = p.AddField("reason", r.Reason)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(r.Time))
}

// RecordAck records a worker response.
func (s *InfluxSink) RecordAck(ev coremetrics.AckRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_ack").
		AddTag("worker_id", ev.WorkerID).
		AddTag("action", ev.Action).
		AddTag("component", "router").
		AddField("task_id", ev.TaskID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCompletion records a completed task.
func (s *InfluxSink) RecordCompletion(ev coremetrics.CompletionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_complete").
		AddTag("worker_id", ev.WorkerID).
		AddTag("task_type", ev.TaskType.String()).
		AddTag("zone", string(ev.Zone)).
		AddField("task_id", ev.TaskID).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordZoneUpdate records an applied worker zone fix.
func (s *InfluxSink) RecordZoneUpdate(ev coremetrics.ZoneUpdateRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("worker_zone").
		AddTag("worker_id", ev.WorkerID).
		AddTag("source", string(ev.Source)).
		AddField("zone", string(ev.Zone)).
		AddField("confidence", round3(ev.Confidence)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
