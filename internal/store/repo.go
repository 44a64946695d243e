package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrNotFound is returned by single-entity lookups when no row exists.
// Searches never return it; an empty search is an empty page.
var ErrNotFound = errors.New("not found")

type Repo struct {
	db *gorm.DB
}

func OpenPostgres(user, password, dbName, host, port, sslMode string) (*gorm.DB, error) {
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", host, user, password, dbName, port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func New(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&TelemetrySample{}, &DeviceAction{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) InsertSample(ctx context.Context, s *TelemetrySample) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	s.Timestamp = s.Timestamp.UTC()
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) InsertAction(ctx context.Context, a *DeviceAction) error {
	if strings.TrimSpace(a.DeviceName) == "" {
		return errors.New("device name is empty")
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	a.Timestamp = a.Timestamp.UTC()
	return r.db.WithContext(ctx).Create(a).Error
}

// LatestSample returns the most recent telemetry row, or ErrNotFound when
// nothing has been ingested yet.
func (r *Repo) LatestSample(ctx context.Context) (*TelemetrySample, error) {
	var s TelemetrySample
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecentSamples returns the newest n samples in ascending timestamp order,
// ready for chart rendering.
func (r *Repo) RecentSamples(ctx context.Context, n int) ([]TelemetrySample, error) {
	if n <= 0 {
		n = 30
	}
	var rows []TelemetrySample
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// LatestAction returns the most recent action row for a device, matched
// case-insensitively, or ErrNotFound for a device never seen.
func (r *Repo) LatestAction(ctx context.Context, deviceName string) (*DeviceAction, error) {
	var a DeviceAction
	err := r.db.WithContext(ctx).
		Where("LOWER(device_name) = ?", strings.ToLower(strings.TrimSpace(deviceName))).
		Order("timestamp DESC, id DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CurrentDeviceStates resolves the current on/off state of every device:
// the maximum-timestamp row per case-insensitive name, ordered by name.
// The casing of the most recent row wins.
func (r *Repo) CurrentDeviceStates(ctx context.Context) ([]DeviceAction, error) {
	var rows []DeviceAction
	// Newest first so the first row seen per name is the winner.
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]DeviceAction)
	for _, a := range rows {
		key := strings.ToLower(a.DeviceName)
		if _, seen := latest[key]; !seen {
			latest[key] = a
		}
	}
	out := make([]DeviceAction, 0, len(latest))
	for _, a := range latest {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DeviceName) < strings.ToLower(out[j].DeviceName)
	})
	return out, nil
}

// DeleteSampleRange removes all telemetry with timestamp in [from, to) and
// reports the number of rows removed.
func (r *Repo) DeleteSampleRange(ctx context.Context, from, to time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from.UTC(), to.UTC()).
		Delete(&TelemetrySample{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
