// Package selection holds the cross-view selection state: which
// vehicle is selected, which date range, which split-screen layout.
//
// Three independent channels can all claim to set the same field "now":
// the owning view, the persisted store's change feed and the in-tab
// broadcast bus. Every inbound update therefore runs through one dedup
// rule: if its embedded timestamp is within one second of this
// instance's own last write for the same field, it is an echo of that
// write arriving through a second channel and is discarded. Without
// this, two open views re-broadcast each other's updates indefinitely.
package selection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetgrid/fleettrack/internal/bus"
	"github.com/fleetgrid/fleettrack/internal/dates"
	"github.com/fleetgrid/fleettrack/internal/kvstore"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

// Persisted store keys, shared by every view on the origin.
const (
	KeyVehicle   = "lastSelectedVehicle"
	KeyDateRange = "lastDateRange"
	KeySplitMode = "splitScreenMode"
)

// persistedVehicle is the stored shape of the vehicle selection.
type persistedVehicle struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IMEI      string `json:"imei"`
	Model     string `json:"model,omitempty"`
	RegNumber string `json:"regNumber,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// persistedRange is the stored shape of the date range selection.
// StartDate is truncated to local midnight before persisting.
type persistedRange struct {
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	UpdateTimestamp int64  `json:"updateTimestamp"`
}

// VehiclePayload travels on the broadcast bus for vehicle selections.
type VehiclePayload struct {
	Vehicle core.Vehicle
}

// RangePayload travels on the broadcast bus for date range changes.
type RangePayload struct {
	Range core.DateRange
}

// ModePayload travels on the broadcast bus for split mode changes.
type ModePayload struct {
	Mode core.SplitMode
}

// Store reconciles selection updates from all channels and re-emits
// genuine changes. In-memory reads observe the latest write
// immediately; cross-channel deliveries are asynchronous.
type Store struct {
	mu    sync.Mutex
	state core.SelectionState

	kv  kvstore.Store
	bus *bus.Bus
	log *slog.Logger

	onChange []func(core.SelectionState)

	cancels []func()
	stop    chan struct{}
	started bool
}

// New creates a Store wired to the persisted backend and the broadcast
// bus. Call Initialize before use.
func New(kv kvstore.Store, b *bus.Bus, log *slog.Logger) *Store {
	return &Store{
		kv:   kv,
		bus:  b,
		log:  log,
		stop: make(chan struct{}),
		state: core.SelectionState{
			SplitMode: core.SplitSingle,
		},
	}
}

// Initialize loads any persisted selection and starts listening on
// both inbound channels. A caller-supplied initial vehicle takes
// precedence over the persisted one and is not overwritten.
func (s *Store) Initialize(initial *core.Vehicle) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("selection store already initialized")
	}
	s.started = true

	if initial != nil {
		v := *initial
		s.state.Vehicle = &v
	} else {
		s.loadVehicleLocked()
	}
	s.loadRangeLocked()
	s.loadSplitModeLocked()
	s.mu.Unlock()

	s.cancels = append(s.cancels,
		s.bus.Subscribe(bus.TopicVehicleSelected, s.onBusVehicle),
		s.bus.Subscribe(bus.TopicDateRangeChanged, s.onBusRange),
		s.bus.Subscribe(bus.TopicSplitModeChanged, s.onBusMode),
	)
	go s.watchStore()

	return nil
}

// Close stops inbound reconciliation. The persisted backend is owned by
// the caller and stays open.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		return
	default:
	}
	close(s.stop)
	for _, cancel := range s.cancels {
		cancel()
	}
}

// State returns a snapshot of the current selection.
func (s *Store) State() core.SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// OnChange registers a callback invoked after any genuine state change,
// regardless of which channel it arrived on.
func (s *Store) OnChange(fn func(core.SelectionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// SetVehicle selects a vehicle. Selecting the already-selected vehicle
// is a no-op: exactly one persist and one broadcast happen per genuine
// change.
func (s *Store) SetVehicle(v core.Vehicle) {
	s.mu.Lock()
	if s.state.Vehicle != nil && s.state.Vehicle.SameIdentity(v) {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	cp := v
	s.state.Vehicle = &cp
	s.state.LastVehicleUpdate = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistVehicle(v, now)
	s.bus.Publish(bus.Event{
		Topic:     bus.TopicVehicleSelected,
		Payload:   VehiclePayload{Vehicle: v},
		Timestamp: now,
	})
	s.notify(snap)
}

// SetDateRange normalizes and stores a range. A range whose both ends
// are within tolerance of the current one is a no-op.
func (s *Store) SetDateRange(r core.DateRange) {
	norm := core.DateRange{
		Start: dates.Normalize(r.Start),
		End:   dates.Normalize(r.End),
	}

	s.mu.Lock()
	if s.state.DateRange != nil && s.state.DateRange.Equal(norm) {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	cp := norm
	s.state.DateRange = &cp
	s.state.LastDateUpdate = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistRange(norm, now)
	s.bus.Publish(bus.Event{
		Topic:     bus.TopicDateRangeChanged,
		Payload:   RangePayload{Range: norm},
		Timestamp: now,
	})
	s.notify(snap)
}

// SetSplitMode stores the layout. Idempotent writes are harmless, so
// there is no dedup here.
func (s *Store) SetSplitMode(m core.SplitMode) {
	if !core.ValidSplitMode(m) {
		s.log.Warn("ignoring unknown split mode", "mode", m)
		return
	}

	s.mu.Lock()
	s.state.SplitMode = m
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if data, err := json.Marshal(m); err == nil {
		if err := s.kv.Set(KeySplitMode, data); err != nil {
			s.log.Error("failed to persist split mode", "error", err)
		}
	}
	s.bus.Publish(bus.Event{Topic: bus.TopicSplitModeChanged, Payload: ModePayload{Mode: m}})
	s.notify(snap)
}

// ---- inbound: broadcast bus ----

func (s *Store) onBusVehicle(e bus.Event) {
	p, ok := e.Payload.(VehiclePayload)
	if !ok {
		return
	}
	s.adoptVehicle(p.Vehicle, e.Timestamp, "bus")
}

func (s *Store) onBusRange(e bus.Event) {
	p, ok := e.Payload.(RangePayload)
	if !ok {
		return
	}
	s.adoptRange(p.Range, e.Timestamp, "bus")
}

func (s *Store) onBusMode(e bus.Event) {
	p, ok := e.Payload.(ModePayload)
	if !ok {
		return
	}
	s.adoptMode(p.Mode)
}

// ---- inbound: persisted store change feed ----

func (s *Store) watchStore() {
	ch := s.kv.Watch()
	for {
		select {
		case <-s.stop:
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			s.handleStoreChange(c)
		}
	}
}

func (s *Store) handleStoreChange(c kvstore.Change) {
	if c.Value == nil {
		return
	}
	switch c.Key {
	case KeyVehicle:
		var pv persistedVehicle
		if err := json.Unmarshal(c.Value, &pv); err != nil {
			s.log.Warn("malformed persisted vehicle", "error", err)
			return
		}
		v := core.Vehicle{ID: pv.ID, Name: pv.Name, IMEI: pv.IMEI, Model: pv.Model, RegNumber: pv.RegNumber}
		s.adoptVehicle(v, time.UnixMilli(pv.Timestamp), "store")
	case KeyDateRange:
		var pr persistedRange
		if err := json.Unmarshal(c.Value, &pr); err != nil {
			s.log.Warn("malformed persisted range", "error", err)
			return
		}
		r := core.DateRange{
			Start: dates.Normalize(pr.StartDate),
			End:   dates.Normalize(pr.EndDate),
		}
		s.adoptRange(r, time.UnixMilli(pr.UpdateTimestamp), "store")
	case KeySplitMode:
		var m core.SplitMode
		if err := json.Unmarshal(c.Value, &m); err != nil {
			return
		}
		s.adoptMode(m)
	}
}

// ---- reconciliation ----

// adoptVehicle applies a vehicle update from an inbound channel.
// Updates stamped within tolerance of our own last write are echoes.
func (s *Store) adoptVehicle(v core.Vehicle, stamp time.Time, channel string) {
	s.mu.Lock()
	if dates.WithinTolerance(stamp, s.state.LastVehicleUpdate) {
		s.mu.Unlock()
		s.log.Debug("suppressed vehicle echo", "channel", channel, "vehicle", v.Key())
		return
	}
	if s.state.Vehicle != nil && s.state.Vehicle.SameIdentity(v) {
		s.mu.Unlock()
		return
	}
	cp := v
	s.state.Vehicle = &cp
	s.state.LastVehicleUpdate = stamp
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("adopted vehicle from channel", "channel", channel, "vehicle", v.Key())
	s.notify(snap)
}

func (s *Store) adoptRange(r core.DateRange, stamp time.Time, channel string) {
	s.mu.Lock()
	if dates.WithinTolerance(stamp, s.state.LastDateUpdate) {
		s.mu.Unlock()
		s.log.Debug("suppressed range echo", "channel", channel)
		return
	}
	if s.state.DateRange != nil && s.state.DateRange.Equal(r) {
		s.mu.Unlock()
		return
	}
	cp := r
	s.state.DateRange = &cp
	s.state.LastDateUpdate = stamp
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Debug("adopted range from channel", "channel", channel)
	s.notify(snap)
}

func (s *Store) adoptMode(m core.SplitMode) {
	if !core.ValidSplitMode(m) {
		return
	}
	s.mu.Lock()
	if s.state.SplitMode == m {
		s.mu.Unlock()
		return
	}
	s.state.SplitMode = m
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// ---- persistence ----

func (s *Store) persistVehicle(v core.Vehicle, stamp time.Time) {
	pv := persistedVehicle{
		ID: v.ID, Name: v.Name, IMEI: v.IMEI,
		Model: v.Model, RegNumber: v.RegNumber,
		Timestamp: stamp.UnixMilli(),
	}
	data, err := json.Marshal(pv)
	if err != nil {
		return
	}
	if err := s.kv.Set(KeyVehicle, data); err != nil {
		s.log.Error("failed to persist vehicle", "error", err)
	}
}

func (s *Store) persistRange(r core.DateRange, stamp time.Time) {
	pr := persistedRange{
		StartDate:       dates.SerializeISO(dates.TruncateToMidnight(r.Start)),
		EndDate:         dates.SerializeISO(r.End),
		UpdateTimestamp: stamp.UnixMilli(),
	}
	data, err := json.Marshal(pr)
	if err != nil {
		return
	}
	if err := s.kv.Set(KeyDateRange, data); err != nil {
		s.log.Error("failed to persist range", "error", err)
	}
}

func (s *Store) loadVehicleLocked() {
	data, ok, err := s.kv.Get(KeyVehicle)
	if err != nil || !ok {
		return
	}
	var pv persistedVehicle
	if err := json.Unmarshal(data, &pv); err != nil {
		s.log.Warn("discarding malformed persisted vehicle", "error", err)
		return
	}
	s.state.Vehicle = &core.Vehicle{
		ID: pv.ID, Name: pv.Name, IMEI: pv.IMEI,
		Model: pv.Model, RegNumber: pv.RegNumber,
	}
	s.state.LastVehicleUpdate = time.UnixMilli(pv.Timestamp)
}

func (s *Store) loadRangeLocked() {
	data, ok, err := s.kv.Get(KeyDateRange)
	if err != nil || !ok {
		return
	}
	var pr persistedRange
	if err := json.Unmarshal(data, &pr); err != nil {
		s.log.Warn("discarding malformed persisted range", "error", err)
		return
	}
	s.state.DateRange = &core.DateRange{
		Start: dates.Normalize(pr.StartDate),
		End:   dates.Normalize(pr.EndDate),
	}
	s.state.LastDateUpdate = time.UnixMilli(pr.UpdateTimestamp)
}

func (s *Store) loadSplitModeLocked() {
	data, ok, err := s.kv.Get(KeySplitMode)
	if err != nil || !ok {
		return
	}
	var m core.SplitMode
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	if core.ValidSplitMode(m) {
		s.state.SplitMode = m
	}
}

// ---- helpers ----

func (s *Store) snapshotLocked() core.SelectionState {
	snap := s.state
	if s.state.Vehicle != nil {
		v := *s.state.Vehicle
		snap.Vehicle = &v
	}
	if s.state.DateRange != nil {
		r := *s.state.DateRange
		snap.DateRange = &r
	}
	return snap
}

func (s *Store) notify(snap core.SelectionState) {
	s.mu.Lock()
	callbacks := make([]func(core.SelectionState), len(s.onChange))
	copy(callbacks, s.onChange)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(snap)
	}
}
