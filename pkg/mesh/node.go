// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/kic"
	"github.com/Thermoquad/coldmesh/pkg/radio"
	"github.com/Thermoquad/coldmesh/pkg/sensor"
	"github.com/Thermoquad/coldmesh/pkg/templog"
)

// maxEvents is how many recent events a Snapshot carries
const maxEvents = 50

// ErrNotRunning is returned by Submit after the loop has stopped
var ErrNotRunning = errors.New("mesh: node is not running")

// Alerter presents alarms (buzzer, bell, LED). It is called on every
// monitor tick, with an empty slice when nothing is alarming.
type Alerter interface {
	Alert(alarms []Alarm)
}

// Options configures a Node
type Options struct {
	Self         string
	Roster       []string
	Key          envelope.Key
	IVSource     io.Reader
	Clock        *Clock
	SilenceUntil time.Time

	Tick      time.Duration
	Read      time.Duration
	Broadcast time.Duration
	Jitter    time.Duration
	Monitor   time.Duration
	Freshness time.Duration
	LogEvery  time.Duration

	// Daytime is the audible window; nil means DefaultDayWindow.
	Daytime    *DayWindow
	Location   *time.Location
	SilenceFor time.Duration

	// AnnounceRoster broadcasts NODELIST after a local roster add.
	AnnounceRoster bool

	Rand      *rand.Rand
	Persister Persister
	TempLog   *templog.Writer
	Alerter   Alerter
	Logger    *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Clock == nil {
		o.Clock = NewClock(true, 0)
	}
	if o.Tick == 0 {
		o.Tick = 100 * time.Millisecond
	}
	if o.Read == 0 {
		o.Read = 5 * time.Second
	}
	if o.Broadcast == 0 {
		o.Broadcast = 30 * time.Second
	}
	if o.Monitor == 0 {
		o.Monitor = time.Second
	}
	if o.Freshness == 0 {
		o.Freshness = 300 * time.Second
	}
	if o.LogEvery == 0 {
		o.LogEvery = 15 * time.Minute
	}
	if o.Daytime == nil {
		w := DefaultDayWindow
		o.Daytime = &w
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.SilenceFor == 0 {
		o.SilenceFor = time.Hour
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Event is a notable thing that happened on the node, kept for dashboards
type Event struct {
	Time  time.Time
	Level slog.Level
	Text  string
}

// Snapshot is a copy of node state published after each monitor tick
type Snapshot struct {
	Time         time.Time
	Self         string
	Peers        []StatusRecord
	Roster       []string
	Health       []PeerHealth
	Alarms       []Alarm
	ProbeFault   bool
	SilenceUntil time.Time
	Silenced     bool
	ClockTrusted bool
	AwaitingSync bool
	NextTx       time.Time
	Stats        Statistics
	Events       []Event
}

type result struct {
	value any
	err   error
}

type command struct {
	fn   func(host time.Time) (any, error)
	done chan result
}

// Node is the single-threaded control loop of a mesh node
type Node struct {
	opts    Options
	log     *slog.Logger
	radio   radio.Radio
	sensor  sensor.Sensor
	state   *State
	stats   *Statistics
	monitor Monitor
	tx      *Transmitter
	rx      *Receiver

	commands chan command
	wake     chan struct{}
	stopped  chan struct{}

	nextRead    time.Time
	nextMonitor time.Time
	nextLog     time.Time
	probeFault  bool
	alarmKeys   map[string]bool
	events      []Event

	mu        sync.Mutex
	latest    Snapshot
	observers []func(Snapshot)
}

// NewNode wires a node around a radio and a sensor
func NewNode(r radio.Radio, s sensor.Sensor, opts Options) (*Node, error) {
	if !kic.ValidID(opts.Self) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, opts.Self)
	}
	opts.applyDefaults()
	if err := opts.Daytime.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger.With("node", opts.Self)
	stats := NewStatistics(time.Now())
	state := NewState(opts.Self, opts.Roster, opts.Clock, opts.Persister, logger)
	state.Silence.until = opts.SilenceUntil

	sealer := envelope.NewSealer(opts.Key)
	if opts.IVSource != nil {
		sealer.Rand = opts.IVSource
	}

	n := &Node{
		opts:   opts,
		log:    logger,
		radio:  r,
		sensor: s,
		state:  state,
		stats:  stats,
		monitor: Monitor{
			Freshness:    opts.Freshness,
			DayStartHour: opts.Daytime.StartHour,
			DayEndHour:   opts.Daytime.EndHour,
			Location:     opts.Location,
		},
		tx:        NewTransmitter(r, sealer, opts.Broadcast, opts.Jitter, opts.Rand, stats, logger),
		rx:        NewReceiver(r, opts.Key, state, stats, logger),
		commands:  make(chan command, 16),
		wake:      make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		alarmKeys: make(map[string]bool),
	}
	return n, nil
}

// State exposes the session for tests and single-goroutine callers
func (n *Node) State() *State { return n.state }

// Subscribe registers fn to receive every published snapshot.
// fn runs on the loop goroutine and must not block.
func (n *Node) Subscribe(fn func(Snapshot)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, fn)
}

// Latest returns the most recently published snapshot
func (n *Node) Latest() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latest
}

// Start arms the radio and the schedules. Run calls it; tests driving
// Step directly call it once first.
func (n *Node) Start(host time.Time) {
	n.stats.StartTime = host
	n.radio.SetPacketHandler(n.packetAvailable)
	if err := n.radio.StartReceive(); err != nil {
		n.log.Warn("failed to start receive", "err", err)
	}

	n.nextRead = host
	n.nextMonitor = host
	n.nextLog = templog.NextBoundary(n.state.Clock.Now(host).In(n.opts.Location), n.opts.LogEvery)
	n.tx.Schedule(host)

	n.event(host, slog.LevelInfo, fmt.Sprintf("node %s started, roster %s", n.state.Self, n.state.Roster))
}

func (n *Node) packetAvailable() {
	n.rx.Notify()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Run drives Step until ctx is cancelled
func (n *Node) Run(ctx context.Context) error {
	defer close(n.stopped)

	n.Start(time.Now())
	ticker := time.NewTicker(n.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.log.Info("node stopped")
			return nil
		case now := <-ticker.C:
			n.Step(now)
		case <-n.wake:
			n.Step(time.Now())
		}
	}
}

// Step runs one loop iteration at host time now, in fixed order:
// commands, sensor read, receive, transmit, CSV log, liveness monitor.
func (n *Node) Step(now time.Time) {
	n.runCommands(now)

	if !now.Before(n.nextRead) {
		n.readSensor(now)
		n.nextRead = now.Add(n.opts.Read)
	}

	if msg := n.rx.Poll(now); msg != nil {
		n.heard(now, msg)
	}

	if n.tx.Due(now) {
		self := n.state.SelfRecord()
		if err := n.tx.Broadcast(self.Status()); err != nil {
			n.log.Warn("broadcast skipped", "err", err)
			n.event(now, slog.LevelWarn, "broadcast failed: "+err.Error())
		}
		n.tx.Schedule(now)
	}

	if n.opts.TempLog != nil {
		n.logTemps(now)
	}

	if !now.Before(n.nextMonitor) {
		n.evaluate(now)
		n.nextMonitor = now.Add(n.opts.Monitor)
	}
}

func (n *Node) runCommands(now time.Time) {
	for {
		select {
		case c := <-n.commands:
			v, err := c.fn(now)
			c.done <- result{value: v, err: err}
		default:
			return
		}
	}
}

func (n *Node) readSensor(now time.Time) {
	if n.sensor == nil {
		return
	}
	reading, err := sensor.Read(n.sensor)
	if err != nil {
		n.log.Warn("sensor read failed", "err", err)
	}
	if reading.Fault && !n.probeFault {
		n.event(now, slog.LevelWarn, "temperature probe disconnected")
	}
	if !reading.Fault && n.probeFault {
		n.event(now, slog.LevelInfo, "temperature probe reconnected")
	}
	n.probeFault = reading.Fault
	n.state.UpsertSelf(reading.Temps, now)
}

func (n *Node) heard(now time.Time, msg kic.Message) {
	switch m := msg.(type) {
	case kic.Status:
		if m.ID != n.state.Self {
			n.event(now, slog.LevelDebug, fmt.Sprintf("status from %s: %s°C", m.ID, kic.FormatTemp(m.Temp1)))
		}
	case kic.NodeList:
		n.event(now, slog.LevelInfo, "roster announced: "+n.state.Roster.String())
	case kic.Alarm:
		n.event(now, slog.LevelWarn, fmt.Sprintf("%s reports %s down", m.From, m.Down))
	}
}

func (n *Node) logTemps(now time.Time) {
	local := n.state.Clock.Now(now).In(n.opts.Location)
	// The clock can jump backwards on adoption or a manual set
	if n.nextLog.Sub(local) > n.opts.LogEvery {
		n.nextLog = templog.NextBoundary(local, n.opts.LogEvery)
	}
	if local.Before(n.nextLog) {
		return
	}
	n.nextLog = templog.NextBoundary(local, n.opts.LogEvery)

	var rows []templog.Row
	for _, id := range n.state.Roster.IDs() {
		row := templog.Row{Node: id, Temps: [3]float64{math.NaN(), math.NaN(), math.NaN()}}
		if r, ok := n.state.Peers.Get(id); ok {
			row.Temps = r.Temps
		}
		rows = append(rows, row)
	}
	if err := n.opts.TempLog.Append(local, rows); err != nil {
		n.log.Warn("temperature log write failed", "err", err)
	}
}

func (n *Node) evaluate(now time.Time) {
	local := n.state.Clock.Now(now)
	health := n.monitor.Evaluate(n.state, local)
	silenced := n.state.Silence.Active(now)
	alarms := n.monitor.Alarms(local, health, n.probeFault, silenced)

	n.trackAlarms(now, alarms)
	if n.opts.Alerter != nil {
		n.opts.Alerter.Alert(alarms)
	}
	n.publish(now, local, health, alarms, silenced)
}

// trackAlarms logs alarms when they begin and end; presentation stays level-triggered
func (n *Node) trackAlarms(now time.Time, alarms []Alarm) {
	current := make(map[string]bool, len(alarms))
	for _, a := range alarms {
		key := a.Kind.String() + ":" + a.Node
		current[key] = true
		if !n.alarmKeys[key] {
			n.log.Warn("alarm raised", "kind", a.Kind.String(), "peer", a.Node, "audible", a.Audible)
			n.event(now, slog.LevelWarn, "ALARM "+describeAlarm(a))
		}
	}
	for key := range n.alarmKeys {
		if !current[key] {
			n.log.Info("alarm cleared", "alarm", key)
		}
	}
	n.alarmKeys = current
}

func describeAlarm(a Alarm) string {
	if a.Kind == AlarmProbeFault {
		return "temperature probe disconnected"
	}
	return "node down: " + a.Node
}

func (n *Node) event(now time.Time, level slog.Level, text string) {
	n.events = append(n.events, Event{Time: n.state.Clock.Now(now), Level: level, Text: text})
	if len(n.events) > maxEvents {
		n.events = n.events[len(n.events)-maxEvents:]
	}
}

func (n *Node) snapshot(now time.Time) Snapshot {
	local := n.state.Clock.Now(now)
	health := n.monitor.Evaluate(n.state, local)
	silenced := n.state.Silence.Active(now)
	return n.buildSnapshot(now, local, health, n.monitor.Alarms(local, health, n.probeFault, silenced), silenced)
}

func (n *Node) buildSnapshot(now, local time.Time, health []PeerHealth, alarms []Alarm, silenced bool) Snapshot {
	return Snapshot{
		Time:         local,
		Self:         n.state.Self,
		Peers:        n.state.Peers.Snapshot(),
		Roster:       n.state.Roster.IDs(),
		Health:       health,
		Alarms:       alarms,
		ProbeFault:   n.probeFault,
		SilenceUntil: n.state.Silence.Until(),
		Silenced:     silenced,
		ClockTrusted: n.state.Clock.Trusted(),
		AwaitingSync: n.state.Clock.AwaitingSync(),
		NextTx:       n.tx.Next(),
		Stats:        *n.stats,
		Events:       append([]Event(nil), n.events...),
	}
}

func (n *Node) publish(now, local time.Time, health []PeerHealth, alarms []Alarm, silenced bool) {
	snap := n.buildSnapshot(now, local, health, alarms, silenced)

	n.mu.Lock()
	n.latest = snap
	observers := slices.Clone(n.observers)
	n.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// Submit runs fn on the loop goroutine at the start of the next Step.
// If ctx ends first, fn may still run later; it must not share memory with
// the caller.
func (n *Node) Submit(ctx context.Context, fn func(host time.Time) error) error {
	_, err := submit(ctx, n, func(host time.Time) (struct{}, error) {
		return struct{}{}, fn(host)
	})
	return err
}

// submit queues fn and waits for its value. The value only crosses back
// through the command's buffered channel.
func submit[T any](ctx context.Context, n *Node, fn func(host time.Time) (T, error)) (T, error) {
	var zero T
	c := command{
		fn: func(host time.Time) (any, error) {
			return fn(host)
		},
		done: make(chan result, 1),
	}
	select {
	case n.commands <- c:
	case <-n.stopped:
		return zero, ErrNotRunning
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case n.wake <- struct{}{}:
	default:
	}

	select {
	case r := <-c.done:
		return r.value.(T), r.err
	case <-n.stopped:
		return zero, ErrNotRunning
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Status returns a fresh snapshot taken on the loop
func (n *Node) Status(ctx context.Context) (Snapshot, error) {
	return submit(ctx, n, func(now time.Time) (Snapshot, error) {
		return n.snapshot(now), nil
	})
}

// Checkin records a dashboard visit and returns a fresh snapshot
func (n *Node) Checkin(ctx context.Context) (Snapshot, error) {
	return submit(ctx, n, func(now time.Time) (Snapshot, error) {
		if err := n.state.Checkin(now); err != nil {
			n.log.Warn("check-in not saved", "err", err)
		}
		return n.snapshot(now), nil
	})
}

// AddNode adds id to the roster, announcing the new roster when configured
func (n *Node) AddNode(ctx context.Context, id string) error {
	return n.Submit(ctx, func(now time.Time) error {
		if err := n.state.AddNode(id); err != nil {
			return err
		}
		n.event(now, slog.LevelInfo, "node added: "+id)
		if n.opts.AnnounceRoster {
			if err := n.tx.Broadcast(kic.NodeList{IDs: n.state.Roster.IDs()}); err != nil {
				n.log.Warn("roster announcement failed", "err", err)
			}
		}
		return nil
	})
}

// Silence suppresses alarms for the configured duration
func (n *Node) Silence(ctx context.Context) (time.Time, error) {
	return submit(ctx, n, func(now time.Time) (time.Time, error) {
		until, err := n.state.SetSilence(now, n.opts.SilenceFor)
		n.event(now, slog.LevelInfo, "alarms silenced until "+until.Format("15:04"))
		return until, err
	})
}

// SetTime sets the node clock manually
func (n *Node) SetTime(ctx context.Context, t time.Time) error {
	return n.Submit(ctx, func(now time.Time) error {
		n.state.Clock.Set(t, now)
		n.event(now, slog.LevelInfo, "clock set to "+t.Format(time.DateTime))
		return nil
	})
}

// Rename changes the node id
func (n *Node) Rename(ctx context.Context, id string) error {
	return n.Submit(ctx, func(now time.Time) error {
		old := n.state.Self
		if err := n.state.Rename(id); err != nil {
			return err
		}
		n.setLogger(n.opts.Logger.With("node", id))
		n.event(now, slog.LevelInfo, fmt.Sprintf("node id changed from %s to %s", old, id))
		return nil
	})
}

func (n *Node) setLogger(logger *slog.Logger) {
	n.log = logger
	n.state.log = logger
	n.tx.log = logger
	n.rx.log = logger
}
