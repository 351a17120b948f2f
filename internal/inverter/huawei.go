// Package inverter reads live production data from a Huawei SUN2000 inverter
// over Modbus.
package inverter

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// RegisterReader returns raw holding registers.
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]uint16, error)
}

type InverterData struct {
	Timestamp time.Time `json:"timestamp"`

	// Device info
	Model        string `json:"model"`
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

	// Grid (single phase)
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

type Huawei struct {
	reader RegisterReader
	clock  clockwork.Clock
}

func NewHuawei(reader RegisterReader, clock clockwork.Clock) *Huawei {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Huawei{reader: reader, clock: clock}
}

// block holds registers read from start onward.
type block struct {
	start uint16
	regs  []uint16
}

func (h *Huawei) read(s span) (block, error) {
	regs, err := h.reader.ReadHoldingRegisters(s.start, s.count)
	if err != nil {
		return block{}, err
	}
	if len(regs) != int(s.count) {
		return block{}, fmt.Errorf("read %d registers at %d, expected %d", len(regs), s.start, s.count)
	}
	return block{start: s.start, regs: regs}, nil
}

func (b block) u16(addr uint16) uint16 { return b.regs[addr-b.start] }
func (b block) i16(addr uint16) int16  { return int16(b.u16(addr)) }

func (b block) u32(addr uint16) uint32 {
	return uint32(b.u16(addr))<<16 | uint32(b.u16(addr+1))
}

func (b block) i32(addr uint16) int32 { return int32(b.u32(addr)) }

func (b block) str(addr, length uint16) string {
	raw := make([]byte, 0, length*2)
	for _, reg := range b.regs[addr-b.start : addr-b.start+length] {
		raw = append(raw, byte(reg>>8), byte(reg))
	}
	return strings.TrimSpace(strings.TrimRight(string(raw), "\x00"))
}

// ReadDeviceInfo returns the model name and serial number.
func (h *Huawei) ReadDeviceInfo() (model, serial string, err error) {
	info, err := h.read(infoBlock)
	if err != nil {
		return "", "", fmt.Errorf("failed to read device info: %w", err)
	}
	return info.str(RegModel, 15), info.str(RegSerialNumber, 10), nil
}

// ReadAllData reads a full set of measurements. On error the returned data
// holds whatever was read before the failure, marked offline.
func (h *Huawei) ReadAllData() (*InverterData, error) {
	data := &InverterData{Timestamp: h.clock.Now()}

	model, serial, err := h.ReadDeviceInfo()
	if err != nil {
		return data, err
	}
	data.Model = model
	data.SerialNumber = serial

	pv, err := h.read(pvBlock)
	if err != nil {
		return data, fmt.Errorf("failed to read PV strings: %w", err)
	}
	data.PV1Voltage = float64(pv.i16(RegPV1Voltage)) * 0.1
	data.PV1Current = float64(pv.i16(RegPV1Current)) * 0.01
	data.PV2Voltage = float64(pv.i16(RegPV2Voltage)) * 0.1
	data.PV2Current = float64(pv.i16(RegPV2Current)) * 0.01

	p, err := h.read(powerBlock)
	if err != nil {
		return data, fmt.Errorf("failed to read power data: %w", err)
	}
	data.InputPower = p.i32(RegInputPower)
	data.GridVoltage = float64(p.u16(RegGridVoltage)) * 0.1
	data.GridCurrent = float64(p.i32(RegGridCurrent)) * 0.001
	data.ActivePower = p.i32(RegActivePower)
	data.ReactivePower = p.i32(RegReactivePower)
	data.PowerFactor = float64(p.i16(RegPowerFactor)) * 0.001
	data.GridFrequency = float64(p.u16(RegGridFrequency)) * 0.01
	data.Efficiency = float64(p.u16(RegEfficiency)) * 0.01
	data.Temperature = float64(p.i16(RegTemperature)) * 0.1
	data.DeviceStatus = p.u16(RegDeviceStatus)
	data.DeviceStatusString = DeviceStatusString(data.DeviceStatus)
	data.FaultCode = p.u16(RegFaultCode)
	data.TotalEnergy = float64(p.u32(RegTotalEnergy)) * 0.01
	data.DailyEnergy = float64(p.u32(RegDailyEnergy)) * 0.01

	data.IsOnline = true
	return data, nil
}
