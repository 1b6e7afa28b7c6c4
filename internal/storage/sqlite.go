// Package storage is the sqlite implementation of the telemetry write and
// query interface
package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SnapshotRecord persisted telemetry snapshot
type SnapshotRecord struct {
	ID            uint      `gorm:"primaryKey"`
	DeviceID      string    `gorm:"index:idx_snapshot_device_time"`
	Timestamp     time.Time `gorm:"index:idx_snapshot_device_time"`
	Kind          string
	Hashrate      *float64
	FanPercent    *float64
	FanRPM        *float64
	Accepted      *uint64
	Rejected      *uint64
	UptimeSeconds *int64
	Temperatures  datatypes.JSON
	Extra         datatypes.JSON
}

// TableName implements gorm's tabler interface
func (SnapshotRecord) TableName() string {
	return "snapshots"
}

// ConnectionEvent persisted state transition
type ConnectionEvent struct {
	ID        uint        `gorm:"primaryKey" json:"-"`
	DeviceID  string      `gorm:"index" json:"deviceId"`
	OldState  state.State `json:"oldState"`
	NewState  state.State `json:"newState"`
	Cause     string      `json:"cause"`
	Timestamp time.Time   `json:"timestamp"`
}

// TableName implements gorm's tabler interface
func (ConnectionEvent) TableName() string {
	return "connection_events"
}

// AutoMigrate creates or updates the telemetry tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SnapshotRecord{}, &ConnectionEvent{})
}

// NewSqliteDatabase opens the database at the configured "database-file"
// path and runs the given migrations
func NewSqliteDatabase(migrations ...func(*gorm.DB) error) (*gorm.DB, error) {
	dbFile := viper.GetString("database-file")

	if dbFile == "" {
		return nil, errors.New("failed to find database file path config")
	}

	db, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})

	if err != nil {
		return nil, err
	}

	for _, migrate := range migrations {
		if err := migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// SqliteStore is our storage implementation for sqlite
type SqliteStore struct {
	db *gorm.DB
}

// NewSqliteStore returns a new instance of SqliteStore
func NewSqliteStore(db *gorm.DB) *SqliteStore {
	return &SqliteStore{db: db}
}

// WriteSnapshot persists one snapshot
func (s *SqliteStore) WriteSnapshot(snap miner.Snapshot) error {
	rec, err := toRecord(snap)

	if err != nil {
		return err
	}

	return s.db.Create(&rec).Error
}

// WriteConnectionEvent persists one state transition
func (s *SqliteStore) WriteConnectionEvent(deviceID string, oldState, newState state.State, cause string, at time.Time) error {
	evt := ConnectionEvent{
		DeviceID:  deviceID,
		OldState:  oldState,
		NewState:  newState,
		Cause:     cause,
		Timestamp: at,
	}

	return s.db.Create(&evt).Error
}

// RecentSnapshots returns up to limit snapshots for a device, newest first
func (s *SqliteStore) RecentSnapshots(deviceID string, limit int) ([]miner.Snapshot, error) {
	records := []SnapshotRecord{}

	result := s.db.
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&records)

	if result.Error != nil {
		return nil, result.Error
	}

	snaps := []miner.Snapshot{}

	for _, rec := range records {
		snap, err := toSnapshot(rec)

		if err != nil {
			return nil, err
		}

		snaps = append(snaps, snap)
	}

	return snaps, nil
}

// ConnectionEvents returns up to limit transitions for a device, newest
// first
func (s *SqliteStore) ConnectionEvents(deviceID string, limit int) ([]ConnectionEvent, error) {
	events := []ConnectionEvent{}

	result := s.db.
		Where("device_id = ?", deviceID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&events)

	if result.Error != nil {
		return nil, result.Error
	}

	return events, nil
}

// Prune deletes snapshots older than cutoff
func (s *SqliteStore) Prune(cutoff time.Time) (int64, error) {
	result := s.db.Where("timestamp < ?", cutoff).Delete(&SnapshotRecord{})
	return result.RowsAffected, result.Error
}

func toRecord(snap miner.Snapshot) (SnapshotRecord, error) {
	rec := SnapshotRecord{
		DeviceID:      snap.DeviceID,
		Timestamp:     snap.Timestamp,
		Kind:          string(snap.Kind),
		Hashrate:      snap.Hashrate,
		FanPercent:    snap.FanPercent,
		FanRPM:        snap.FanRPM,
		Accepted:      snap.Accepted,
		Rejected:      snap.Rejected,
		UptimeSeconds: snap.UptimeSeconds,
	}

	if snap.Temperatures != nil {
		data, err := json.Marshal(snap.Temperatures)

		if err != nil {
			return SnapshotRecord{}, err
		}

		rec.Temperatures = datatypes.JSON(data)
	}

	if snap.Extra != nil {
		data, err := json.Marshal(snap.Extra)

		if err != nil {
			return SnapshotRecord{}, err
		}

		rec.Extra = datatypes.JSON(data)
	}

	return rec, nil
}

func toSnapshot(rec SnapshotRecord) (miner.Snapshot, error) {
	snap := miner.Snapshot{
		DeviceID:      rec.DeviceID,
		Kind:          miner.Kind(rec.Kind),
		Timestamp:     rec.Timestamp,
		Hashrate:      rec.Hashrate,
		FanPercent:    rec.FanPercent,
		FanRPM:        rec.FanRPM,
		Accepted:      rec.Accepted,
		Rejected:      rec.Rejected,
		UptimeSeconds: rec.UptimeSeconds,
	}

	if len(rec.Temperatures) > 0 {
		if err := json.Unmarshal(rec.Temperatures, &snap.Temperatures); err != nil {
			return miner.Snapshot{}, err
		}
	}

	if len(rec.Extra) > 0 {
		if err := json.Unmarshal(rec.Extra, &snap.Extra); err != nil {
			return miner.Snapshot{}, err
		}
	}

	return snap, nil
}
