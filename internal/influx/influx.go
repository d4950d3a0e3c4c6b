// Package influx records operational measurements (fetch latency,
// playback activity, selection churn) to InfluxDB. When the server is
// unreachable the points queue up and spill to a gzip backup file so
// nothing is lost across restarts.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fleetgrid/fleettrack/internal/queue"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

// BucketFleet holds all daemon measurements.
const BucketFleet = "fleet_metrics"

// backlogSpillThreshold is the queued point count above which the
// backlog is flushed to the gzip backup file.
const backlogSpillThreshold = 5000

// DefaultBucketNames are the buckets ensured on connect.
var DefaultBucketNames = []string{
	BucketFleet,
}

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	mu      sync.Mutex
	backlog *queue.Queue[*influxdb2_write.Point]
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
		backlog:     queue.New[*influxdb2_write.Point](),
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("Failed to initialize InfluxDB client, buffering to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		err = m.setupOrganizationAndBuckets()
		if err != nil {
			return err
		}
		m.CreateWriters()
		m.flushBacklog()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backlog")
	}

	return nil
}

func (m *Manager) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB. While the connection is
// invalid the point goes onto the backlog; an oversized backlog spills
// into the gzip backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		if _, ok := m.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		m.Writers[bucket].WritePoint(point)
		return nil
	}

	m.backlog.Push(point)
	if m.backlog.Len() > backlogSpillThreshold {
		return m.spillBacklog()
	}
	return nil
}

// flushBacklog replays queued points onto the live writers.
func (m *Manager) flushBacklog() {
	points := m.backlog.GetAndEmpty()
	if len(points) == 0 {
		return
	}
	writer, ok := m.Writers[BucketFleet]
	if !ok {
		return
	}
	for _, p := range points {
		writer.WritePoint(p)
	}
	m.Logger.Info().Int("points", len(points)).Msg("Replayed backlog to InfluxDB")
}

// spillBacklog drains the queue into the gzip backup file.
func (m *Manager) spillBacklog() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	points := m.backlog.GetAndEmpty()
	for _, p := range points {
		lineProtocol := influxdb2_write.PointToLineProtocol(p, time.Duration(1*time.Nanosecond))
		if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
		}
	}
	m.Logger.Info().Int("points", len(points)).Msg("Spilled backlog to backup file")
	return nil
}

// Close flushes writers and the backup file.
func (m *Manager) Close() {
	if !m.backlog.Empty() {
		if err := m.spillBacklog(); err != nil {
			m.Logger.Error().Err(err).Msg("Error spilling backlog on close")
		}
	}
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		m.BackupWriter.Close()
	}
}

// RecordFetch implements the track service recorder.
func (m *Manager) RecordFetch(imei string, source core.FetchSource, duration time.Duration, points int, fetchErr error) {
	p := influxdb2_write.NewPointWithMeasurement("track_fetch").
		AddTag("imei", imei).
		AddTag("source", string(source)).
		AddField("duration_ms", duration.Milliseconds()).
		AddField("points", points).
		AddField("failed", fetchErr != nil).
		SetTime(time.Now())

	if err := m.WritePoint(context.Background(), BucketFleet, p); err != nil {
		m.Logger.Error().Err(err).Msg("Error recording fetch measurement")
	}
}

// RecordPlayback notes a playback state transition.
func (m *Manager) RecordPlayback(action string, cursor, datasetLen int) {
	p := influxdb2_write.NewPointWithMeasurement("playback").
		AddTag("action", action).
		AddField("cursor", cursor).
		AddField("dataset_len", datasetLen).
		SetTime(time.Now())

	if err := m.WritePoint(context.Background(), BucketFleet, p); err != nil {
		m.Logger.Error().Err(err).Msg("Error recording playback measurement")
	}
}

// RecordSelection notes a selection change on any channel.
func (m *Manager) RecordSelection(field, vehicleKey string) {
	p := influxdb2_write.NewPointWithMeasurement("selection").
		AddTag("field", field).
		AddTag("vehicle", vehicleKey).
		AddField("count", 1).
		SetTime(time.Now())

	if err := m.WritePoint(context.Background(), BucketFleet, p); err != nil {
		m.Logger.Error().Err(err).Msg("Error recording selection measurement")
	}
}
