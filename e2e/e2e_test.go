package e2e

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/zonedispatch/app"
	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/factory"
	coremetrics "github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/core/model"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/infra/mqtt"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// junitReport is a minimal representation of a JUnit XML report. The E2E
// suite writes such a report so CI systems can display the results.
type junitReport struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name    string  `xml:"name,attr"`
	Failure *string `xml:"failure,omitempty"`
	Time    float64 `xml:"time,attr"`
}

func writeJUnit(path string, rep junitReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(rep)
}

// startInflux starts an InfluxDB 2.7 container initialised with the e2e
// organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a Mosquitto broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// device is a worker handset talking to the broker.
type device struct {
	t           *testing.T
	cli         paho.Client
	workerID    string
	assignments chan coremqtt.AssignmentNotice
}

func newDevice(t *testing.T, broker, workerID string) *device {
	t.Helper()
	d := &device{t: t, workerID: workerID, assignments: make(chan coremqtt.AssignmentNotice, 4)}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("device-" + workerID)
	d.cli = paho.NewClient(opts)
	tok := d.cli.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	tok = d.cli.Subscribe("worker/"+workerID+"/assignment", 1, func(_ paho.Client, m paho.Message) {
		var n coremqtt.AssignmentNotice
		if err := json.Unmarshal(m.Payload(), &n); err == nil {
			d.assignments <- n
		}
	})
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	t.Cleanup(func() { d.cli.Disconnect(100) })
	return d
}

func (d *device) send(kind string, v any) {
	d.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(d.t, err)
	tok := d.cli.Publish("worker/"+d.workerID+"/"+kind, 1, false, b)
	require.True(d.t, tok.WaitTimeout(10*time.Second))
	require.NoError(d.t, tok.Error())
}

func e2eConfig(t *testing.T, broker, influxURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Topology: config.TopologyConfig{
			Zones: []model.Zone{
				{ID: "L1-LOBBY", Name: "Lobby", Edges: map[model.ZoneID]int{"L2-W": 40}},
				{ID: "L2-W", Name: "West wing", Edges: map[model.ZoneID]int{"L1-LOBBY": 40}},
			},
		},
		Roster: []config.RosterEntry{
			{ID: "ana", Name: "Ana", Role: "housekeeping", OnShift: true, Zone: "L2-W"},
			{ID: "ben", Name: "Ben", Role: "housekeeping", OnShift: true, Zone: "L1-LOBBY"},
		},
		Logging: logging.Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "dispatch.db")},
		Metrics: coremetrics.Config{Sinks: []factory.ModuleConfig{{
			Type: "influx",
			Conf: map[string]any{"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket},
		}}},
		MQTT: mqtt.Config{Broker: broker, ClientID: "zonedispatch-e2e"},
	}
	require.NoError(t, cfg.Prepare())
	return cfg
}

// Test_E2E_DispatchOverMQTT runs a worker handset against the service
// through a real broker: heartbeat, assignment, ack and the resulting
// points in InfluxDB.
func Test_E2E_DispatchOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	start := time.Now()

	influxCont, influxURL := startInflux(ctx, t)
	defer influxCont.Terminate(ctx) //nolint:errcheck
	mqttCont, broker := startMosquitto(ctx, t)
	defer mqttCont.Terminate(ctx) //nolint:errcheck

	svc, err := app.New(e2eConfig(t, broker, influxURL), app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close() //nolint:errcheck
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go svc.Run(runCtx) //nolint:errcheck

	ana := newDevice(t, broker, "ana")
	ana.send("heartbeat", coremqtt.HeartbeatMessage{WorkerID: "ana", Timestamp: time.Now()})
	require.Eventually(t, func() bool {
		st, err := svc.Store.GetState(ctx, "ana")
		return err == nil && st.DeviceOnline
	}, 10*time.Second, 100*time.Millisecond)

	task, res, err := svc.Router.CreateTask(ctx, dispatch.TaskRequest{Type: model.TaskTowels, Zone: "L2-W", Priority: model.PriorityHigh})
	require.NoError(t, err)
	require.True(t, res.Assigned, res.Reason)

	var notice coremqtt.AssignmentNotice
	select {
	case notice = <-ana.assignments:
	case <-time.After(10 * time.Second):
		t.Fatal("no assignment received by the device")
	}
	require.Equal(t, task.ID, notice.TaskID)

	ana.send("ack", coremqtt.AckMessage{TaskID: task.ID, WorkerID: "ana", Action: "on_my_way"})
	require.Eventually(t, func() bool {
		a, err := svc.Store.LiveAssignment(ctx, task.ID)
		return err == nil && a.State == model.AssignmentAcked
	}, 10*time.Second, 100*time.Millisecond)
	require.NoError(t, svc.Router.Complete(ctx, task.ID, "ana"))

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	require.Eventually(t, func() bool {
		ok, err := cli.HasMeasurement(ctx, "task_assignment")
		return err == nil && ok
	}, 20*time.Second, 500*time.Millisecond)

	dir := t.TempDir()
	rep := junitReport{Name: "e2e", Tests: 1, Cases: []junitTestCase{{Name: t.Name(), Time: time.Since(start).Seconds()}}}
	if err := writeJUnit(filepath.Join(dir, "e2e.xml"), rep); err != nil {
		t.Logf("write junit: %v", err)
	}
}
