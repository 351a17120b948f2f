package inverter

// Huawei SUN2000 holding registers. Addresses are used as-is on the wire.
const (
	RegModel        = 30000 // STR, 15 registers
	RegSerialNumber = 30015 // STR, 10 registers

	RegPV1Voltage = 32016 // I16, 0.1 V
	RegPV1Current = 32017 // I16, 0.01 A
	RegPV2Voltage = 32018 // I16, 0.1 V
	RegPV2Current = 32019 // I16, 0.01 A

	RegInputPower    = 32064 // I32, W
	RegGridVoltage   = 32069 // U16, 0.1 V, phase A
	RegGridCurrent   = 32072 // I32, 0.001 A, phase A
	RegActivePower   = 32080 // I32, W
	RegReactivePower = 32082 // I32, var
	RegPowerFactor   = 32084 // I16, 0.001
	RegGridFrequency = 32085 // U16, 0.01 Hz
	RegEfficiency    = 32086 // U16, 0.01 %
	RegTemperature   = 32087 // I16, 0.1 °C
	RegDeviceStatus  = 32089 // U16
	RegFaultCode     = 32090 // U16
	RegTotalEnergy   = 32106 // U32, 0.01 kWh
	RegDailyEnergy   = 32114 // U32, 0.01 kWh
)

// Contiguous blocks read in one request each.
var (
	infoBlock  = span{start: RegModel, count: 25}
	pvBlock    = span{start: RegPV1Voltage, count: 4}
	powerBlock = span{start: RegInputPower, count: RegDailyEnergy + 2 - RegInputPower}
)

type span struct {
	start uint16
	count uint16
}

// Device status codes
const (
	StatusStandbyInitializing = 0x0000
	StatusStandbyInsulation   = 0x0001
	StatusStandbyIrradiation  = 0x0002
	StatusStandbyGrid         = 0x0003
	StatusStarting            = 0x0100
	StatusOnGrid              = 0x0200
	StatusPowerLimited        = 0x0201
	StatusDerating            = 0x0202
	StatusShutdownFault       = 0x0300
	StatusShutdownCommand     = 0x0301
	StatusShutdownOVGR        = 0x0302
	StatusShutdownCommDown    = 0x0303
	StatusShutdownPowerLimit  = 0x0304
	StatusShutdownManual      = 0x0305
	StatusShutdownDCOff       = 0x0306
	StatusNoIrradiation       = 0xA000
)

func DeviceStatusString(status uint16) string {
	switch status {
	case StatusStandbyInitializing:
		return "Standby: initializing"
	case StatusStandbyInsulation:
		return "Standby: detecting insulation resistance"
	case StatusStandbyIrradiation:
		return "Standby: detecting irradiation"
	case StatusStandbyGrid:
		return "Standby: grid detecting"
	case StatusStarting:
		return "Starting"
	case StatusOnGrid:
		return "On-grid"
	case StatusPowerLimited:
		return "On-grid: power limited"
	case StatusDerating:
		return "On-grid: self derating"
	case StatusShutdownFault:
		return "Shutdown: fault"
	case StatusShutdownCommand:
		return "Shutdown: command"
	case StatusShutdownOVGR:
		return "Shutdown: OVGR"
	case StatusShutdownCommDown:
		return "Shutdown: communication disconnected"
	case StatusShutdownPowerLimit:
		return "Shutdown: power limited"
	case StatusShutdownManual:
		return "Shutdown: manual startup required"
	case StatusShutdownDCOff:
		return "Shutdown: DC switches disconnected"
	case StatusNoIrradiation:
		return "Standby: no irradiation"
	default:
		return "Unknown"
	}
}

// Producing reports whether the status is one of the grid-connected states.
func Producing(status uint16) bool {
	return status >= StatusOnGrid && status <= StatusDerating
}
