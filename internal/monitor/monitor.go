// Package monitor periodically snapshots the daemon state (selection,
// playback cursor, cache usage, connected stream clients) to a status
// file and to the stream as status messages.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetgrid/fleettrack/internal/logging"
	"github.com/fleetgrid/fleettrack/internal/playback"
	"github.com/fleetgrid/fleettrack/internal/selection"
	"github.com/fleetgrid/fleettrack/internal/stream"
	"github.com/fleetgrid/fleettrack/internal/track"
	"github.com/fleetgrid/fleettrack/pkg/streaming"
)

// DefaultInterval is the snapshot period.
const DefaultInterval = 1 * time.Second

// Dependencies holds everything the monitor observes.
type Dependencies struct {
	LogManager *logging.SlogManager
	Selection  *selection.Store
	Engine     *playback.Engine
	Cache      *track.SessionCache
	Hub        *stream.Hub // may be nil when streaming is disabled
	StatusDir  string
	Interval   time.Duration
}

// Snapshot is one status report.
type Snapshot struct {
	Time          time.Time `json:"time"`
	VehicleKey    string    `json:"vehicleKey"`
	VehicleName   string    `json:"vehicleName"`
	RangeStart    time.Time `json:"rangeStart"`
	RangeEnd      time.Time `json:"rangeEnd"`
	SplitMode     string    `json:"splitMode"`
	DatasetLen    int       `json:"datasetLen"`
	Cursor        int       `json:"cursor"`
	Running       bool      `json:"running"`
	SpeedFactor   float64   `json:"speedFactor"`
	CachedTracks  int       `json:"cachedTracks"`
	StreamClients int       `json:"streamClients"`
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Collect builds a snapshot of the current daemon state.
func (s *Service) Collect() Snapshot {
	snap := Snapshot{Time: time.Now()}

	sel := s.deps.Selection.State()
	if sel.Vehicle != nil {
		snap.VehicleKey = sel.Vehicle.Key()
		snap.VehicleName = sel.Vehicle.Name
	}
	if sel.DateRange != nil {
		snap.RangeStart = sel.DateRange.Start
		snap.RangeEnd = sel.DateRange.End
	}
	snap.SplitMode = string(sel.SplitMode)

	pb := s.deps.Engine.Snapshot()
	snap.DatasetLen = pb.DatasetLen
	snap.Cursor = pb.Cursor
	snap.Running = pb.Running
	snap.SpeedFactor = pb.SpeedFactor

	snap.CachedTracks = s.deps.Cache.Len()
	if s.deps.Hub != nil {
		snap.StreamClients = s.deps.Hub.ClientCount()
	}
	return snap
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.json"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				snap := s.Collect()

				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					data = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
				}

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					statusFile.Write(append(data, '\n'))
				}

				if s.deps.Hub != nil && s.deps.Hub.ClientCount() > 0 {
					if err := s.deps.Hub.Broadcast(streaming.TypeStatus, snap); err != nil {
						logger.Error("Error broadcasting status", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
