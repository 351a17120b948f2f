package storage

import (
	"time"

	"gorm.io/gorm"
)

type InverterReading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	SerialNumber string `json:"serial_number"`

	// Energy
	DailyEnergy float64 `json:"daily_energy_kwh"`
	TotalEnergy float64 `json:"total_energy_kwh"`

	Temperature float64 `json:"temperature_c"`

	// PV strings
	PV1Voltage float64 `json:"pv1_voltage_v"`
	PV1Current float64 `json:"pv1_current_a"`
	PV2Voltage float64 `json:"pv2_voltage_v"`
	PV2Current float64 `json:"pv2_current_a"`
	InputPower int32   `json:"input_power_w"`

	// Grid
	GridVoltage   float64 `json:"grid_voltage_v"`
	GridCurrent   float64 `json:"grid_current_a"`
	GridFrequency float64 `json:"grid_frequency_hz"`

	// Power
	ActivePower   int32   `json:"active_power_w"`
	ReactivePower int32   `json:"reactive_power_var"`
	PowerFactor   float64 `json:"power_factor"`
	Efficiency    float64 `json:"efficiency_pct"`

	// Status
	DeviceStatus       uint16 `json:"device_status"`
	DeviceStatusString string `json:"device_status_string"`
	FaultCode          uint16 `json:"fault_code"`
	IsOnline           bool   `json:"is_online"`
}

// RefreshRun records one model refresh.
type RefreshRun struct {
	ID              uint      `gorm:"primarykey" json:"-"`
	RunID           string    `gorm:"uniqueIndex;size:36" json:"id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	StartedAt       time.Time `gorm:"index" json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	State           string    `json:"state"`
	ClearSkySamples int       `json:"clearsky_samples"`
	ForecastSamples int       `json:"forecast_samples"`
	WeatherError    string    `json:"weather_error,omitempty"`
}

// ForecastDay is the forecast production of one local day as last published.
type ForecastDay struct {
	Date        time.Time `gorm:"primarykey" json:"date"`
	RunID       string    `gorm:"size:36" json:"run_id"`
	ForecastKwh float64   `json:"forecast_kwh"`
	ClearSkyKwh float64   `json:"clearsky_kwh"`
	UpdatedAt   time.Time `json:"updated_at"`
}
