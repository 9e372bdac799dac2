// internal/protocol/constants.go
package protocol

// Wire layout constants.
// These values define the device protocol and MUST NOT be configurable.

// ---- PAYLOAD SIZES ----

// DeviceInfoLen is the size of the DeviceInfo payload (firmware 0x1200+).
const DeviceInfoLen = 6

// ParametersLen is the size of the Parameters payload.
const ParametersLen = 7

// StatisticsLen is the size of the statistics header payload.
const StatisticsLen = 12

// ---- HISTOGRAM GEOMETRY ----

// HistogramChunkCount is the number of chunk reads composing one histogram.
const HistogramChunkCount = 3

// HistogramChunkLen is the number of bins carried by one chunk.
const HistogramChunkLen = 20

// HistogramBins is the total number of bins kept by the device.
const HistogramBins = HistogramChunkCount * HistogramChunkLen

// HistogramMinPower is the power threshold of bin 0.
const HistogramMinPower = 4000

// HistogramBinWidth is the power width of one bin.
const HistogramBinWidth = 200

// ---- WIRE UNITS ----

// LatencyUnitMs is the wire unit of Parameters.LaunchLatencyMs.
const LatencyUnitMs = 10

// DelayUnitMs is the wire unit of Parameters.ShootDelayMs.
const DelayUnitMs = 2

// PowerUnitRPM is the wire unit of shoot power and motor max rpm.
const PowerUnitRPM = 100

// ---- FIRMWARE VERSIONS ----

// VersionUnknown is the sentinel carried before a device is identified.
const VersionUnknown uint16 = 0x0000

// Version100 is the first released firmware.
const Version100 uint16 = 0x1000

// Version110 is the fixed version reported for the 1.1.x family.
const Version110 uint16 = 0x1100

// Version120 is the first firmware exposing the DeviceInfo endpoint.
const Version120 uint16 = 0x1200

// Version130 switched the condition word to a raw 3-bit switch type.
const Version130 uint16 = 0x1300

// ---- DEVICE FORMAT ----

// FormatLauncherController marks a device driving electric launchers.
const FormatLauncherController uint8 = 0

// FormatMeasurementOnly marks a measurement-only device.
const FormatMeasurementOnly uint8 = 1

// ---- SWITCH TYPES ----

// SwitchNone means the mode is changed in software.
const SwitchNone uint8 = 0

// SwitchSlide is a physical slide switch.
const SwitchSlide uint8 = 1

// SwitchTactile is a tactile push switch (firmware 0x1300+).
const SwitchTactile uint8 = 2

// ---- COMMAND PAYLOAD ----

// commandTrigger is written to single-shot command endpoints.
const commandTrigger byte = 0x01
