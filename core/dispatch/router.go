package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/events"
	"github.com/kilianp07/zonedispatch/core/logger"
	"github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/core/scoring"
	"github.com/kilianp07/zonedispatch/core/store"
	"github.com/kilianp07/zonedispatch/core/zonegraph"
	"github.com/kilianp07/zonedispatch/internal/eventbus"
)

// ReasonNoEligible is reported when no candidate can take a task.
const ReasonNoEligible = "no eligible workers"

// AckAction is a worker response to an assignment.
type AckAction string

const (
	AckSeen     AckAction = "seen"
	AckOnMyWay  AckAction = "on_my_way"
	AckBusy     AckAction = "busy"
	ackTimedOut AckAction = "timeout"
)

// ParseAckAction converts the wire representation into an AckAction.
func ParseAckAction(s string) (AckAction, error) {
	switch a := AckAction(s); a {
	case AckSeen, AckOnMyWay, AckBusy:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// TaskRequest describes a task to create.
type TaskRequest struct {
	Type          model.TaskType `json:"type"`
	Zone          model.ZoneID   `json:"zone_id"`
	Priority      model.Priority `json:"priority"`
	RequiredSkill string         `json:"required_skill,omitempty"`
	Source        string         `json:"source,omitempty"`
	Description   string         `json:"description,omitempty"`
}

// WorkerRequest describes a worker to onboard.
type WorkerRequest struct {
	Name            string     `json:"name"`
	Role            model.Role `json:"role"`
	EmployeeID      string     `json:"employee_id,omitempty"`
	PrimarySkills   []string   `json:"primary_skills,omitempty"`
	SecondarySkills []string   `json:"secondary_skills,omitempty"`
}

// RouteResult is the outcome of routing one task.
type RouteResult struct {
	TaskID     string              `json:"task_id"`
	Assigned   bool                `json:"assigned"`
	Assignment *model.Assignment   `json:"assignment,omitempty"`
	Worker     *scoring.Breakdown  `json:"worker,omitempty"`
	Candidates []scoring.Breakdown `json:"candidates"`
	Reason     string              `json:"reason,omitempty"`
}

// AckResult reports what an acknowledgment did.
type AckResult struct {
	Acknowledged bool         `json:"acknowledged"`
	Rerouted     bool         `json:"rerouted"`
	Route        *RouteResult `json:"routing,omitempty"`
}

// Router assigns tasks to workers and drives the assignment lifecycle.
// At most one live assignment per task relies on store.AssignmentStore
// Commit being atomic; the router itself holds no locks.
type Router struct {
	store     store.Store
	graph     *zonegraph.Graph
	scorer    *scoring.Scorer
	cfg       Config
	publisher mqtt.Client
	logger    logger.Logger
	metrics   metrics.MetricsSink
	bus       eventbus.EventBus
	log       logging.LogStore

	// Now is the router clock. The scorer uses the same clock.
	Now   func() time.Time
	newID func() string
}

// NewRouter creates a router. publisher, sink, bus and log may be nil.
func NewRouter(st store.Store, graph *zonegraph.Graph, cfg Config, publisher mqtt.Client, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Router, error) {
	if st == nil || graph == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewRouter")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := cfg.WeightTable()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	r := &Router{
		store:     st,
		graph:     graph,
		scorer:    scoring.NewScorer(table),
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.OrNop(log),
		metrics:   sink,
		bus:       bus,
		Now:       time.Now,
		newID:     uuid.NewString,
	}
	r.scorer.Now = func() time.Time { return r.Now() }
	return r, nil
}

// SetLogStore configures the store used to persist the dispatch log.
func (r *Router) SetLogStore(s logging.LogStore) { r.log = s }

// Close releases the log store. The bus is owned by the caller.
func (r *Router) Close() error {
	if r.log != nil {
		return r.log.Close()
	}
	return nil
}

// CreateWorker onboards a worker: off shift, reliability 0.8, device
// offline and a neutral zone confidence.
func (r *Router) CreateWorker(ctx context.Context, req WorkerRequest) (model.Worker, error) {
	if req.Name == "" {
		return model.Worker{}, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	w := model.Worker{
		ID:              r.newID(),
		Name:            req.Name,
		Role:            req.Role,
		PrimarySkills:   req.PrimarySkills,
		SecondarySkills: req.SecondarySkills,
		Reliability:     0.8,
	}
	if err := r.store.PutWorker(ctx, w); err != nil {
		return model.Worker{}, fmt.Errorf("dispatch: create worker: %w", err)
	}
	if _, err := r.store.UpdateState(ctx, w.ID, func(s *model.WorkerState) error {
		s.ZoneConfidence = 0.5
		s.DeviceOnline = false
		return nil
	}); err != nil {
		return model.Worker{}, fmt.Errorf("dispatch: init worker state: %w", err)
	}
	r.append(ctx, logging.LogRecord{
		Event:    logging.EventWorkerCreated,
		WorkerID: w.ID,
		Data:     map[string]any{"name": w.Name, "role": w.Role.String(), "employee_id": req.EmployeeID},
	})
	r.logger.Infof("worker created: %s - %s (%s)", w.ID, w.Name, w.Role)
	return w, nil
}

// CreateTask persists a new task and routes it.
func (r *Router) CreateTask(ctx context.Context, req TaskRequest) (model.Task, RouteResult, error) {
	if req.Zone == "" {
		return model.Task{}, RouteResult{}, fmt.Errorf("%w: zone is required", ErrInvalidRequest)
	}
	if !r.graph.Has(req.Zone) {
		r.logger.Warnf("task zone %s is not part of the topology", req.Zone)
	}
	t := model.Task{
		ID:            r.newID(),
		Type:          req.Type,
		Zone:          req.Zone,
		Priority:      req.Priority,
		Status:        model.TaskNew,
		RequiredSkill: req.RequiredSkill,
		Source:        req.Source,
		Description:   req.Description,
		CreatedAt:     r.Now(),
	}
	if err := r.store.CreateTask(ctx, t); err != nil {
		return model.Task{}, RouteResult{}, fmt.Errorf("dispatch: create task: %w", err)
	}
	r.logger.Infof("task created: %s - %s at %s", t.ID, t.Type, t.Zone)
	r.publish(events.TaskEvent{Action: events.TaskCreated, Task: t, At: t.CreatedAt})
	r.append(ctx, logging.LogRecord{
		Timestamp: t.CreatedAt,
		Event:     logging.EventTaskCreated,
		TaskID:    t.ID,
		Zone:      t.Zone,
		Data:      map[string]any{"type": t.Type.String(), "priority": t.Priority.String()},
	})
	res, err := r.Route(ctx, t.ID)
	if err != nil {
		return t, RouteResult{}, err
	}
	if res.Assigned {
		t.Status = model.TaskAssigned
	}
	return t, res, nil
}

// Route scores the on-shift pool of the task's role and commits the best
// eligible candidate. A task nobody can take is escalated and reported in
// the result, not as an error.
func (r *Router) Route(ctx context.Context, taskID string) (RouteResult, error) {
	return r.route(ctx, taskID, 0)
}

func (r *Router) route(ctx context.Context, taskID string, reroutes int) (RouteResult, error) {
	start := time.Now()
	t, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return RouteResult{}, fmt.Errorf("dispatch: route %s: %w", taskID, err)
	}
	if t.Status != model.TaskNew {
		return RouteResult{}, fmt.Errorf("dispatch: route %s in status %s: %w", taskID, t.Status, store.ErrConflict)
	}
	defer func() {
		routingLatency.WithLabelValues(t.Priority.String()).Observe(time.Since(start).Seconds())
	}()

	ranked, err := r.rank(ctx, t)
	if err != nil {
		return RouteResult{}, err
	}
	res := RouteResult{TaskID: t.ID, Candidates: ranked}
	best, ok := scoring.Best(ranked)
	if !ok {
		res.Reason = ReasonNoEligible
		r.escalate(ctx, t, ranked, reroutes)
		return res, nil
	}

	a := model.Assignment{
		ID:         r.newID(),
		TaskID:     t.ID,
		WorkerID:   best.WorkerID,
		State:      model.AssignmentPendingAck,
		Score:      best.Total,
		Reroutes:   reroutes,
		AssignedAt: r.Now(),
	}
	if err := r.store.Commit(ctx, a); err != nil {
		return RouteResult{}, fmt.Errorf("dispatch: commit %s to %s: %w", t.ID, best.WorkerID, err)
	}
	res.Assigned = true
	res.Assignment = &a
	res.Worker = &best
	tasksRouted.WithLabelValues("assigned").Inc()
	r.logger.Infof("task %s assigned to %s (score: %.1f)", t.ID, best.WorkerName, best.Total)

	r.notify(ctx, t, a, best)
	action := events.TaskAssigned
	if reroutes > 0 {
		action = events.TaskRerouted
	}
	t.Status = model.TaskAssigned
	r.publish(events.TaskEvent{Action: action, Task: t, WorkerID: best.WorkerID, Score: best.Total, At: a.AssignedAt})
	r.append(ctx, logging.LogRecord{
		Timestamp: a.AssignedAt,
		Event:     logging.EventTaskAssigned,
		TaskID:    t.ID,
		WorkerID:  best.WorkerID,
		Zone:      t.Zone,
		Score:     best.Total,
		Data: map[string]any{
			"candidates": eligibleCount(ranked),
			"reroutes":   reroutes,
			"breakdown": map[string]any{
				"proximity":   best.Proximity,
				"reliability": best.Reliability,
				"load":        best.Load,
				"device":      best.Device,
				"skill":       best.Skill,
			},
		},
	})
	r.record(metrics.AssignmentResult{
		TaskID:        t.ID,
		TaskType:      t.Type,
		Priority:      t.Priority,
		Zone:          t.Zone,
		WorkerID:      best.WorkerID,
		Score:         best.Total,
		TravelSeconds: best.TravelSeconds,
		Candidates:    eligibleCount(ranked),
		Assigned:      true,
		Rerouted:      reroutes > 0,
		Time:          a.AssignedAt,
	})
	return res, nil
}

// rank scores every on-shift worker of the task's pool.
func (r *Router) rank(ctx context.Context, t model.Task) ([]scoring.Breakdown, error) {
	role := r.cfg.poolRole(t.Type)
	workers, err := r.store.ListWorkers(ctx, store.WorkerFilter{Role: &role, OnShiftOnly: true})
	if err != nil {
		return nil, fmt.Errorf("dispatch: list %s workers: %w", role, err)
	}
	inputs := make([]scoring.WorkerInput, 0, len(workers))
	origins := make(map[string]model.ZoneID, len(workers))
	for _, w := range workers {
		st, err := r.store.GetState(ctx, w.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.logger.Warnf("worker %s has no state, skipped", w.ID)
				continue
			}
			return nil, fmt.Errorf("dispatch: state of %s: %w", w.ID, err)
		}
		inputs = append(inputs, scoring.NewWorkerInput(w, st))
		origins[w.ID] = st.CurrentZone
	}
	task := scoring.NewTaskInput(t)
	if r.cfg.LegacyPriority {
		task.Priority = task.Priority.Collapse()
	}
	ranked := r.scorer.Rank(inputs, task, r.graph.TravelTimes(origins, t.Zone))
	r.logger.Debugw("candidates ranked", map[string]any{"task_id": t.ID, "pool": role.String(), "candidates": len(ranked)})
	return ranked, nil
}

func (r *Router) escalate(ctx context.Context, t model.Task, ranked []scoring.Breakdown, reroutes int) {
	now := r.Now()
	tasksRouted.WithLabelValues("escalated").Inc()
	r.logger.Warnf("task %s escalated: %s (%d scored)", t.ID, ReasonNoEligible, len(ranked))
	r.publish(events.EscalationEvent{Task: t, Candidates: len(ranked), Reason: ReasonNoEligible, At: now})
	if r.publisher != nil {
		err := r.publisher.SendEscalation(ctx, mqtt.EscalationNotice{
			TaskID:     t.ID,
			Type:       t.Type,
			Zone:       t.Zone,
			Priority:   t.Priority,
			Candidates: len(ranked),
			Reason:     ReasonNoEligible,
			At:         now,
		})
		if err != nil {
			r.logger.Errorf("escalation notice for %s failed: %v", t.ID, err)
		}
	}
	r.append(ctx, logging.LogRecord{
		Timestamp: now,
		Event:     logging.EventTaskEscalate,
		TaskID:    t.ID,
		Zone:      t.Zone,
		Data:      map[string]any{"reason": ReasonNoEligible, "scored": len(ranked), "reroutes": reroutes},
	})
	r.record(metrics.AssignmentResult{
		TaskID:   t.ID,
		TaskType: t.Type,
		Priority: t.Priority,
		Zone:     t.Zone,
		Rerouted: reroutes > 0,
		Reason:   ReasonNoEligible,
		Time:     now,
	})
}

func (r *Router) notify(ctx context.Context, t model.Task, a model.Assignment, b scoring.Breakdown) {
	if r.publisher == nil {
		return
	}
	_, err := r.publisher.SendAssignment(ctx, mqtt.AssignmentNotice{
		AssignmentID:  a.ID,
		TaskID:        t.ID,
		WorkerID:      a.WorkerID,
		Type:          t.Type,
		Zone:          t.Zone,
		Priority:      t.Priority,
		Description:   t.Description,
		Score:         b.Total,
		TravelSeconds: b.TravelSeconds,
		Reroutes:      a.Reroutes,
		AssignedAt:    a.AssignedAt,
	})
	if err != nil {
		notifyFailure.Inc()
		r.logger.Errorf("assignment notice %s to %s failed: %v", t.ID, a.WorkerID, err)
		return
	}
	notifySuccess.Inc()
}

// liveAssignment returns the live assignment of taskID held by workerID.
func (r *Router) liveAssignment(ctx context.Context, taskID, workerID string) (model.Assignment, error) {
	a, err := r.store.LiveAssignment(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Assignment{}, fmt.Errorf("task %s has no live assignment: %w", taskID, ErrInvalidAssignment)
		}
		return model.Assignment{}, fmt.Errorf("dispatch: assignment of %s: %w", taskID, err)
	}
	if a.WorkerID != workerID {
		return model.Assignment{}, fmt.Errorf("task %s is not assigned to %s: %w", taskID, workerID, ErrInvalidAssignment)
	}
	return a, nil
}

// Acknowledge applies a worker response. seen and on_my_way accept the
// task; busy declines it and routes it again.
func (r *Router) Acknowledge(ctx context.Context, taskID, workerID string, action AckAction) (AckResult, error) {
	if _, err := ParseAckAction(string(action)); err != nil {
		return AckResult{}, err
	}
	a, err := r.liveAssignment(ctx, taskID, workerID)
	if err != nil {
		return AckResult{}, err
	}
	t, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return AckResult{}, fmt.Errorf("dispatch: ack %s: %w", taskID, err)
	}
	now := r.Now()
	latency := now.Sub(a.AssignedAt)
	ackLatency.WithLabelValues(string(action)).Observe(latency.Seconds())
	r.publish(events.AckEvent{TaskID: taskID, WorkerID: workerID, Action: string(action), Latency: latency})

	if action == AckBusy {
		res, err := r.decline(ctx, a, action)
		if err != nil {
			return AckResult{}, err
		}
		return AckResult{Rerouted: true, Route: &res}, nil
	}

	first := a.State == model.AssignmentPendingAck
	if first {
		a.State = model.AssignmentAcked
		a.AcknowledgedAt = now
		if err := r.store.UpdateAssignment(ctx, a); err != nil {
			return AckResult{}, fmt.Errorf("dispatch: ack %s: %w", taskID, err)
		}
		if err := r.store.SetTaskStatus(ctx, taskID, model.TaskInProgress); err != nil {
			return AckResult{}, fmt.Errorf("dispatch: ack %s: %w", taskID, err)
		}
		if err := r.nudge(ctx, workerID, r.cfg.AckReliabilityBonus); err != nil {
			return AckResult{}, err
		}
	}
	r.append(ctx, logging.LogRecord{
		Timestamp: now,
		Event:     logging.EventTaskAck,
		TaskID:    taskID,
		WorkerID:  workerID,
		Zone:      t.Zone,
		Data:      map[string]any{"action": string(action), "first": first},
	})
	return AckResult{Acknowledged: true}, nil
}

// decline releases a live assignment and routes the task again, carrying
// the reroute counter.
func (r *Router) decline(ctx context.Context, a model.Assignment, action AckAction) (RouteResult, error) {
	if err := r.store.Release(ctx, a.ID); err != nil {
		return RouteResult{}, fmt.Errorf("dispatch: release %s: %w", a.ID, err)
	}
	t, err := r.store.GetTask(ctx, a.TaskID)
	if err != nil {
		return RouteResult{}, fmt.Errorf("dispatch: reroute %s: %w", a.TaskID, err)
	}
	event := logging.EventWorkerBusy
	if action == ackTimedOut {
		event = logging.EventAssignmentExpired
	}
	now := r.Now()
	r.append(ctx, logging.LogRecord{
		Timestamp: now,
		Event:     event,
		TaskID:    a.TaskID,
		WorkerID:  a.WorkerID,
		Zone:      t.Zone,
	})
	r.append(ctx, logging.LogRecord{
		Timestamp: now,
		Event:     logging.EventTaskReroute,
		TaskID:    a.TaskID,
		WorkerID:  a.WorkerID,
		Zone:      t.Zone,
		Data:      map[string]any{"reason": string(action), "reroutes": a.Reroutes + 1},
	})
	r.logger.Infof("task %s declined by %s (%s), rerouting", a.TaskID, a.WorkerID, action)
	return r.route(ctx, a.TaskID, a.Reroutes+1)
}

// Complete closes the task. The worker is known to stand in the task zone,
// which becomes their task sourced position.
func (r *Router) Complete(ctx context.Context, taskID, workerID string) error {
	a, err := r.liveAssignment(ctx, taskID, workerID)
	if err != nil {
		return err
	}
	t, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("dispatch: complete %s: %w", taskID, err)
	}
	now := r.Now()
	a.State = model.AssignmentCompleted
	a.CompletedAt = now
	if err := r.store.UpdateAssignment(ctx, a); err != nil {
		return fmt.Errorf("dispatch: complete %s: %w", taskID, err)
	}
	if err := r.store.SetTaskStatus(ctx, taskID, model.TaskCompleted); err != nil {
		return fmt.Errorf("dispatch: complete %s: %w", taskID, err)
	}
	live, err := r.store.LiveAssignments(ctx, workerID)
	if err != nil {
		return fmt.Errorf("dispatch: live assignments of %s: %w", workerID, err)
	}
	var from model.ZoneID
	st, err := r.store.UpdateState(ctx, workerID, func(s *model.WorkerState) error {
		from = s.CurrentZone
		s.CurrentZone = t.Zone
		s.ZoneConfidence = 1
		s.ZoneSource = model.SourceTask
		if now.After(s.ZoneUpdatedAt) {
			s.ZoneUpdatedAt = now
		}
		s.ActiveTaskCount = len(live)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dispatch: update state of %s: %w", workerID, err)
	}
	if err := r.nudge(ctx, workerID, r.cfg.CompleteReliabilityBonus); err != nil {
		return err
	}

	t.Status = model.TaskCompleted
	r.publish(events.TaskEvent{Action: events.TaskCompleted, Task: t, WorkerID: workerID, Score: a.Score, At: now})
	r.publish(events.ZoneUpdateEvent{WorkerID: workerID, From: from, To: t.Zone, Confidence: 1, Source: model.SourceTask, At: st.ZoneUpdatedAt})
	r.append(ctx, logging.LogRecord{
		Timestamp: now,
		Event:     logging.EventTaskComplete,
		TaskID:    taskID,
		WorkerID:  workerID,
		Zone:      t.Zone,
	})
	r.logger.Infof("task %s completed by %s in %s", taskID, workerID, t.Zone)
	return nil
}

// SweepPendingAcks re-routes assignments still pending after the configured
// ack timeout, as if the worker had answered busy. It returns the number of
// expired assignments and does nothing when the timeout is disabled.
func (r *Router) SweepPendingAcks(ctx context.Context, now time.Time) (int, error) {
	if r.cfg.AckTimeoutSeconds <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(r.cfg.AckTimeoutSeconds) * time.Second)
	pending, err := r.store.PendingSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("dispatch: pending assignments: %w", err)
	}
	var expired int
	for _, a := range pending {
		cur, err := r.store.LiveAssignment(ctx, a.TaskID)
		if err != nil || cur.ID != a.ID || cur.State != model.AssignmentPendingAck {
			continue
		}
		if _, err := r.decline(ctx, a, ackTimedOut); err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
				// acked, completed or re-routed concurrently
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		r.logger.Warnf("%d assignments expired without ack", expired)
	}
	return expired, nil
}

// RunAckSweeper calls SweepPendingAcks every interval until ctx is done.
func (r *Router) RunAckSweeper(ctx context.Context, interval time.Duration) {
	if r.cfg.AckTimeoutSeconds <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepPendingAcks(ctx, r.Now()); err != nil {
				r.logger.Errorf("ack sweep failed: %v", err)
			}
		}
	}
}

func (r *Router) nudge(ctx context.Context, workerID string, delta float64) error {
	if _, err := r.store.UpdateWorker(ctx, workerID, func(w *model.Worker) error {
		w.Nudge(delta)
		return nil
	}); err != nil {
		return fmt.Errorf("dispatch: reliability of %s: %w", workerID, err)
	}
	return nil
}

func (r *Router) publish(ev eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

func (r *Router) append(ctx context.Context, rec logging.LogRecord) {
	if r.log == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.Now()
	}
	if err := r.log.Append(ctx, rec); err != nil {
		r.logger.Errorf("dispatch log append failed: %v", err)
	}
}

func (r *Router) record(res metrics.AssignmentResult) {
	if err := r.metrics.RecordAssignment(res); err != nil {
		r.logger.Errorf("metrics error: %v", err)
	}
}

func eligibleCount(ranked []scoring.Breakdown) int {
	n := 0
	for _, b := range ranked {
		if b.Eligible {
			n++
		}
	}
	return n
}
