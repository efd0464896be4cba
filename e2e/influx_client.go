package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads back what the metrics sink wrote during the E2E run.
type InfluxClient struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

// NewInfluxClient creates a client for a running InfluxDB instance.
func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{
		bucket: bucket,
		client: c,
		query:  c.QueryAPI(org),
	}
}

// Query runs a Flux query. The caller iterates and closes the result.
func (c *InfluxClient) Query(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	return c.query.Query(ctx, flux)
}

// HasMeasurement reports whether the bucket holds a point of measurement
// written during the last five minutes.
func (c *InfluxClient) HasMeasurement(ctx context.Context, measurement string) (bool, error) {
	res, err := c.Query(ctx, fmt.Sprintf(`from(bucket:"%s") |> range(start:-5m) |> filter(fn: (r) => r._measurement == "%s")`, c.bucket, measurement))
	if err != nil {
		return false, err
	}
	defer res.Close()
	return res.Next(), res.Err()
}

// Close releases the underlying client resources.
func (c *InfluxClient) Close() { c.client.Close() }
