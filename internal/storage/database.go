// Package storage keeps collected inverter readings, the refresh history and
// the published daily forecast totals in SQLite.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"soleil-forecast/internal/inverter"
	"soleil-forecast/internal/production"
)

// Database stores times in UTC so that range queries compare correctly.
type Database struct {
	db *gorm.DB
}

// NewDatabase opens the database at path and migrates the schema. Use
// ":memory:" for a throwaway database.
func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise open its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&InverterReading{}, &RefreshRun{}, &ForecastDay{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SaveReading(data *inverter.InverterData) error {
	reading := &InverterReading{
		Timestamp:          data.Timestamp.UTC(),
		SerialNumber:       data.SerialNumber,
		DailyEnergy:        data.DailyEnergy,
		TotalEnergy:        data.TotalEnergy,
		Temperature:        data.Temperature,
		PV1Voltage:         data.PV1Voltage,
		PV1Current:         data.PV1Current,
		PV2Voltage:         data.PV2Voltage,
		PV2Current:         data.PV2Current,
		InputPower:         data.InputPower,
		GridVoltage:        data.GridVoltage,
		GridCurrent:        data.GridCurrent,
		GridFrequency:      data.GridFrequency,
		ActivePower:        data.ActivePower,
		ReactivePower:      data.ReactivePower,
		PowerFactor:        data.PowerFactor,
		Efficiency:         data.Efficiency,
		DeviceStatus:       data.DeviceStatus,
		DeviceStatusString: data.DeviceStatusString,
		FaultCode:          data.FaultCode,
		IsOnline:           data.IsOnline,
	}

	return d.db.Create(reading).Error
}

func (d *Database) GetLatestReading() (*InverterReading, error) {
	var reading InverterReading
	result := d.db.Order("timestamp desc").First(&reading)
	if result.Error != nil {
		return nil, result.Error
	}
	return &reading, nil
}

func (d *Database) GetReadingsByRange(from, to time.Time) ([]InverterReading, error) {
	var readings []InverterReading
	result := d.db.Where("timestamp BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("timestamp desc").
		Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

func (d *Database) GetReadingsWithLimit(limit int) ([]InverterReading, error) {
	var readings []InverterReading
	result := d.db.Order("timestamp desc").Limit(limit).Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

// Measurements returns the AC power of online readings between from and to,
// oldest first.
func (d *Database) Measurements(from, to time.Time) ([]production.Measurement, error) {
	var rows []struct {
		Timestamp   time.Time
		ActivePower int32
	}
	result := d.db.Model(&InverterReading{}).
		Select("timestamp, active_power").
		Where("is_online = ? AND timestamp BETWEEN ? AND ?", true, from.UTC(), to.UTC()).
		Order("timestamp asc").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	out := make([]production.Measurement, len(rows))
	for i, r := range rows {
		out[i] = production.Measurement{Time: r.Timestamp, Watts: float64(r.ActivePower)}
	}
	return out, nil
}

func (d *Database) CleanOldReadings(cutoff time.Time) (int64, error) {
	result := d.db.Unscoped().Where("timestamp < ?", cutoff.UTC()).Delete(&InverterReading{})
	return result.RowsAffected, result.Error
}

// RefreshRuns returns the most recent refreshes first.
func (d *Database) RefreshRuns(limit int) ([]RefreshRun, error) {
	var runs []RefreshRun
	result := d.db.Order("started_at desc").Limit(limit).Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

// ForecastDays returns the stored daily totals for days between from and to.
func (d *Database) ForecastDays(from, to time.Time) ([]ForecastDay, error) {
	var days []ForecastDay
	result := d.db.Where("date BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("date asc").
		Find(&days)
	if result.Error != nil {
		return nil, result.Error
	}
	return days, nil
}

// HandleRefresh records the run and, when a forecast is available, the daily
// totals it covers. Totals of a day already stored are replaced.
func (d *Database) HandleRefresh(ctx context.Context, snap *production.Snapshot, report production.RefreshReport) error {
	run := &RefreshRun{
		RunID:           report.ID,
		StartDate:       report.StartDate.UTC(),
		EndDate:         report.EndDate.UTC(),
		StartedAt:       report.StartedAt.UTC(),
		FinishedAt:      report.FinishedAt.UTC(),
		State:           report.State,
		ClearSkySamples: report.ClearSkySamples,
		ForecastSamples: report.ForecastSamples,
		WeatherError:    report.WeatherError,
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to save refresh run: %w", err)
		}
		// a kept forecast was already stored by an earlier run
		if snap.State() != production.Ready || report.WeatherError != "" {
			return nil
		}

		days, err := dailyTotals(snap, report)
		if err != nil {
			return err
		}
		if len(days) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&days).Error
	})
}

func dailyTotals(snap *production.Snapshot, report production.RefreshReport) ([]ForecastDay, error) {
	end := report.EndDate.AddDate(0, 0, 1).Add(-time.Second)
	forecast, err := snap.DailyKwh(production.Forecast, report.StartDate, end)
	if err != nil {
		return nil, err
	}
	clearSky, err := snap.DailyKwh(production.ClearSky, report.StartDate, end)
	if err != nil {
		return nil, err
	}

	ceiling := make(map[int64]float64, len(clearSky))
	for _, p := range clearSky {
		ceiling[p.Time.Unix()] = p.Value
	}

	days := make([]ForecastDay, 0, len(forecast))
	for _, p := range forecast {
		days = append(days, ForecastDay{
			Date:        p.Time.UTC(),
			RunID:       report.ID,
			ForecastKwh: p.Value,
			ClearSkyKwh: ceiling[p.Time.Unix()],
			UpdatedAt:   report.FinishedAt.UTC(),
		})
	}
	return days, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
