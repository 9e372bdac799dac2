// internal/status/constants.go
package status

// Device block layout constants.
// These values define the export protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 88

// ---- HEALTH SLOTS ----

// SlotHealthCode holds the link health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last session error code.
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the link has been in error.
const SlotSecondsInError = 2

// HealthSlots is the number of slots rewritten on every health change.
const HealthSlots = 3

// ---- DEVICE INFO SLOTS ----

const SlotGeneration = 3
const SlotFirmwareVersion = 4
const SlotFormat = 5
const SlotSwitchType = 6
const SlotMotorCount = 7
const SlotMotor1MaxRPM = 8 // wire unit 100 rpm
const SlotMotor2MaxRPM = 9 // wire unit 100 rpm

// ---- STATISTICS SLOTS ----

const SlotTotalShots = 10
const SlotMaxPower = 11
const SlotMinPower = 12
const SlotAvgPower = 13
const SlotStdDevPower = 14
const SlotBinStart = 15
const SlotBinEnd = 16

// SlotSummaryMean and SlotSummaryStdDev hold the client-side estimate
// computed from the histogram, rounded.
const SlotSummaryMean = 17
const SlotSummaryStdDev = 18

// Slot 19 is reserved.
const SlotReserved = 19

// ---- HISTOGRAM ----

// SlotHistogramStart is the slot of absolute bin 0.
// Bin i lives at SlotHistogramStart+i; bins outside the populated range are 0.
const SlotHistogramStart = 20

// SlotHistogramSlots is one slot per device bin.
const SlotHistogramSlots = 60

// TelemetryStart and TelemetrySlots bound the device data region.
const TelemetryStart = SlotGeneration
const TelemetrySlots = SlotHistogramStart + SlotHistogramSlots - TelemetryStart

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the block.
const SlotDeviceNameStart = 80

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy link.
const HealthOK uint16 = 1

// HealthError represents a link error state.
const HealthError uint16 = 2

// HealthStale represents a poll skipped because the link was busy.
const HealthStale uint16 = 3

// HealthDisabled represents a disconnected device.
const HealthDisabled uint16 = 4
