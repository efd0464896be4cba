package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/zonedispatch/auth"
	coremon "github.com/kilianp07/zonedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/infra/logger"
)

// Topic kinds, also used as keys of Config.QoS.
const (
	KindAssignment = "assignment"
	KindEscalation = "escalation"
	KindAck        = "ack"
	KindScan       = "scan"
	KindHeartbeat  = "heartbeat"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix is prepended to the per-worker topics,
	// {prefix}/{worker_id}/{kind}.
	TopicPrefix     string          `json:"topic_prefix"`
	EscalationTopic string          `json:"escalation_topic"`
	UseTLS          bool            `json:"use_tls"`
	ClientCert      string          `json:"client_cert"`
	ClientKey       string          `json:"client_key"`
	CABundle        string          `json:"ca_bundle"`
	// AuthMethod is "username_password" (default), "tls", "both" or
	// "oauth2". With oauth2 the password is a client credential token.
	AuthMethod      string          `json:"auth_method"`
	OAuth           auth.Conf       `json:"oauth"`
	QoS             map[string]byte `json:"qos"`
	LWTTopic        string          `json:"lwt_topic"`
	LWTPayload      string          `json:"lwt_payload"`
	LWTQoS          byte            `json:"lwt_qos"`
	LWTRetain       bool            `json:"lwt_retain"`
	MaxRetries      int             `json:"max_retries"`
	BackoffMS       int             `json:"backoff_ms"`
	TLSConfig       *tls.Config     `json:"-"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "worker"
	}
	if c.EscalationTopic == "" {
		c.EscalationTopic = "supervisor/escalations"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// WorkerTopic returns the topic of one kind of message for one worker.
// Passing "+" as workerID yields the subscription wildcard.
func (c Config) WorkerTopic(workerID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", c.TopicPrefix, workerID, kind)
}

func (c Config) qos(kind string) byte {
	if q, ok := c.QoS[kind]; ok {
		return q
	}
	if kind == KindAssignment || kind == KindAck {
		return 1
	}
	return 0
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements core/mqtt.Client with Eclipse Paho and feeds device
// messages to a core/mqtt.Handler.
type PahoClient struct {
	cli     pahoClient
	cfg     Config
	logger  logger.Logger
	backoff time.Duration

	mu      sync.RWMutex
	handler coremqtt.Handler
	// HandlerTimeout bounds the processing of one inbound message.
	HandlerTimeout time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker. Device topics are subscribed on
// every (re)connection once a handler is set with Handle.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:            cfg,
		logger:         log,
		backoff:        time.Duration(cfg.BackoffMS) * time.Millisecond,
		HandlerTimeout: 5 * time.Second,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.subscribe(c)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	switch cfg.AuthMethod {
	case "username_password", "both", "":
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	case "oauth2":
		if err := cfg.OAuth.Validate(); err != nil {
			return nil, err
		}
		cred := auth.NewClientCred(cfg.OAuth)
		log := logger.New("mqtt_client")
		// Called on every connection attempt, so reconnects get a fresh token.
		opts.SetCredentialsProvider(func() (string, string) {
			tok, err := cred.GetToken()
			if err != nil {
				log.Errorf("broker token: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "mqtt"})
			}
			return cfg.Username, tok
		})
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Handle routes inbound device messages to h and subscribes the device
// topics right away when already connected.
func (p *PahoClient) Handle(h coremqtt.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	if p.cli != nil && p.cli.IsConnected() {
		p.subscribe(p.cli)
	}
}

type subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

func (p *PahoClient) subscribe(c subscriber) {
	p.mu.RLock()
	h := p.handler
	p.mu.RUnlock()
	if h == nil {
		return
	}
	for _, kind := range []string{KindAck, KindScan, KindHeartbeat} {
		topic := p.cfg.WorkerTopic("+", kind)
		if token := c.Subscribe(topic, p.cfg.qos(kind), p.onMessage(kind)); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
}

// workerFromTopic extracts the worker segment of {prefix}/{worker_id}/{kind}.
func (p *PahoClient) workerFromTopic(topic string) string {
	rest, ok := strings.CutPrefix(topic, p.cfg.TopicPrefix+"/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}

func (p *PahoClient) onMessage(kind string) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		p.mu.RLock()
		h := p.handler
		p.mu.RUnlock()
		if h == nil {
			return
		}
		worker := p.workerFromTopic(msg.Topic())
		ctx, cancel := context.WithTimeout(context.Background(), p.HandlerTimeout)
		defer cancel()
		if err := p.dispatch(ctx, h, kind, worker, msg.Payload()); err != nil {
			p.logger.Errorf("%s from %s: %v", kind, worker, err)
			coremon.CaptureException(err, map[string]string{"module": "mqtt", "kind": kind, "worker_id": worker})
		}
	}
}

func (p *PahoClient) dispatch(ctx context.Context, h coremqtt.Handler, kind, worker string, payload []byte) error {
	switch kind {
	case KindAck:
		var m coremqtt.AckMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("decode ack: %w", err)
		}
		if m.WorkerID == "" {
			m.WorkerID = worker
		}
		return h.HandleAck(ctx, m)
	case KindScan:
		var m coremqtt.ScanMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return fmt.Errorf("decode scan: %w", err)
		}
		if m.WorkerID == "" {
			m.WorkerID = worker
		}
		return h.HandleScan(ctx, m)
	case KindHeartbeat:
		var m coremqtt.HeartbeatMessage
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &m); err != nil {
				return fmt.Errorf("decode heartbeat: %w", err)
			}
		}
		if m.WorkerID == "" {
			m.WorkerID = worker
		}
		return h.HandleHeartbeat(ctx, m)
	}
	return fmt.Errorf("unsupported message kind %q", kind)
}

type assignmentMessage struct {
	MessageID string `json:"message_id"`
	coremqtt.AssignmentNotice
}

// SendAssignment publishes the notice on the worker's assignment topic and
// returns the generated message identifier.
func (p *PahoClient) SendAssignment(ctx context.Context, n coremqtt.AssignmentNotice) (string, error) {
	msgID := uuid.NewString()
	payload, err := json.Marshal(assignmentMessage{MessageID: msgID, AssignmentNotice: n})
	if err != nil {
		return "", err
	}
	topic := p.cfg.WorkerTopic(n.WorkerID, KindAssignment)
	if err := p.publish(ctx, topic, p.cfg.qos(KindAssignment), payload); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "worker_id": n.WorkerID, "task_id": n.TaskID})
		return "", err
	}
	p.logger.Infof("sent assignment %s for task %s to %s", msgID, n.TaskID, topic)
	return msgID, nil
}

// SendEscalation publishes the notice on the supervisor topic.
func (p *PahoClient) SendEscalation(ctx context.Context, n coremqtt.EscalationNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := p.publish(ctx, p.cfg.EscalationTopic, p.cfg.qos(KindEscalation), payload); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "task_id": n.TaskID})
		return err
	}
	return nil
}

// publish retries with exponential backoff until MaxRetries extra attempts
// failed or ctx is done.
func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

var _ coremqtt.Client = (*PahoClient)(nil)
