package track

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fleetgrid/fleettrack/internal/api"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

var (
	// ErrMissingIdentifier means the vehicle carries no IMEI; no
	// network call is attempted.
	ErrMissingIdentifier = errors.New("vehicle has no tracker identifier")
	// ErrInvalidRange means the date range is unset or inverted.
	ErrInvalidRange = errors.New("invalid date range")
)

// ProgressFunc receives loading stage updates for the UI indicator.
type ProgressFunc func(stage string, pct int)

// Recorder receives fetch measurements. The influx sink implements it;
// a nil recorder disables measurement.
type Recorder interface {
	RecordFetch(imei string, source core.FetchSource, duration time.Duration, points int, fetchErr error)
}

// Service retrieves track datasets through the chain
// primary endpoint → fallback endpoint → session cache.
type Service struct {
	client   *api.Client
	cache    *SessionCache
	log      *slog.Logger
	recorder Recorder
}

// NewService creates a track service. recorder may be nil.
func NewService(client *api.Client, cache *SessionCache, log *slog.Logger, recorder Recorder) *Service {
	return &Service{client: client, cache: cache, log: log, recorder: recorder}
}

// Cache exposes the session cache for status reporting.
func (s *Service) Cache() *SessionCache { return s.cache }

// FetchTrack retrieves the dataset for a (vehicle, range) pair.
//
// Transport and format failures on the primary endpoint recover through
// the fallback endpoint; failures there recover through the cache. Only
// when all three legs miss does an error surface, paired with an empty
// dataset so the view can degrade instead of crash. An empty-but-
// successful response is a valid outcome, not an error.
func (s *Service) FetchTrack(ctx context.Context, vehicle core.Vehicle, r core.DateRange, progress ProgressFunc) (core.TrackDataset, error) {
	report := func(stage string, pct int) {
		if progress != nil {
			progress(stage, pct)
		}
	}

	if vehicle.IMEI == "" {
		return core.TrackDataset{}, ErrMissingIdentifier
	}
	if !r.Valid() {
		return core.TrackDataset{}, ErrInvalidRange
	}

	start := time.Now()

	report("requesting track", 10)
	ds, primaryErr := s.attempt(ctx, vehicle.IMEI, r, core.SourcePrimary)
	if primaryErr == nil {
		report("track loaded", 100)
		s.record(vehicle.IMEI, core.SourcePrimary, time.Since(start), ds.Len(), nil)
		s.cache.Put(ds)
		return ds, nil
	}
	s.log.Warn("primary track endpoint failed, trying fallback",
		"imei", vehicle.IMEI, "error", primaryErr)

	report("retrying on fallback endpoint", 40)
	ds, fallbackErr := s.attempt(ctx, vehicle.IMEI, r, core.SourceFallback)
	if fallbackErr == nil {
		report("track loaded", 100)
		s.record(vehicle.IMEI, core.SourceFallback, time.Since(start), ds.Len(), nil)
		s.cache.Put(ds)
		return ds, nil
	}
	s.log.Warn("fallback track endpoint failed, trying cache",
		"imei", vehicle.IMEI, "error", fallbackErr)

	report("recovering from cache", 80)
	if cached, ok := s.cache.Get(vehicle.IMEI, r); ok {
		report("track loaded from cache", 100)
		cached.Source = core.SourceCache
		s.record(vehicle.IMEI, core.SourceCache, time.Since(start), cached.Len(), nil)
		// Stale data is rendered the same as fresh data. Accepted
		// trade-off; the Source field feeds metrics only.
		return cached, nil
	}

	err := errors.Join(primaryErr, fallbackErr)
	s.record(vehicle.IMEI, core.SourceNone, time.Since(start), 0, err)
	return core.TrackDataset{IMEI: vehicle.IMEI, Start: r.Start, End: r.End, Source: core.SourceNone}, err
}

// attempt runs one endpoint leg: fetch, shape-match, normalize.
func (s *Service) attempt(ctx context.Context, imei string, r core.DateRange, source core.FetchSource) (core.TrackDataset, error) {
	var body []byte
	var err error
	if source == core.SourcePrimary {
		body, err = s.client.FetchPrimary(ctx, imei, r)
	} else {
		body, err = s.client.FetchFallback(ctx, imei, r)
	}
	if err != nil {
		return core.TrackDataset{}, err
	}

	raws, err := ExtractRawPoints(body)
	if err != nil {
		return core.TrackDataset{}, err
	}

	ds := BuildDataset(imei, r, raws)
	ds.Source = source
	return ds, nil
}

func (s *Service) record(imei string, source core.FetchSource, d time.Duration, points int, err error) {
	if s.recorder != nil {
		s.recorder.RecordFetch(imei, source, d, points, err)
	}
}
