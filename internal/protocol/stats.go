// internal/protocol/stats.go
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Statistics is the shot statistics header.
// HistogramBinStart..HistogramBinEnd is the inclusive range of populated bins.
type Statistics struct {
	TotalShots        uint16 `json:"totalShots"`
	MaxPower          uint16 `json:"maxPower"`
	MinPower          uint16 `json:"minPower"`
	AvgPower          uint16 `json:"avgPower"`
	StdDevPower       uint16 `json:"stdDevPower"`
	HistogramBinStart uint8  `json:"histogramBinStart"`
	HistogramBinEnd   uint8  `json:"histogramBinEnd"`
}

// DecodeStatistics decodes the 12-byte statistics header.
//
// Layout (all LE):
//
//	[0-1] total shots
//	[2-3] max power
//	[4-5] min power
//	[6-7] average power
//	[8-9] standard deviation
//	[10]  first populated bin
//	[11]  last populated bin
func DecodeStatistics(buf []byte) (Statistics, error) {
	if len(buf) < StatisticsLen {
		return Statistics{}, fmt.Errorf("%w: statistics need %d bytes, got %d",
			ErrMalformedPayload, StatisticsLen, len(buf))
	}

	return Statistics{
		TotalShots:        binary.LittleEndian.Uint16(buf[0:2]),
		MaxPower:          binary.LittleEndian.Uint16(buf[2:4]),
		MinPower:          binary.LittleEndian.Uint16(buf[4:6]),
		AvgPower:          binary.LittleEndian.Uint16(buf[6:8]),
		StdDevPower:       binary.LittleEndian.Uint16(buf[8:10]),
		HistogramBinStart: buf[10],
		HistogramBinEnd:   buf[11],
	}, nil
}

// EncodeStatistics builds the header as the firmware sends it.
func EncodeStatistics(s Statistics) []byte {
	buf := make([]byte, StatisticsLen)
	binary.LittleEndian.PutUint16(buf[0:2], s.TotalShots)
	binary.LittleEndian.PutUint16(buf[2:4], s.MaxPower)
	binary.LittleEndian.PutUint16(buf[4:6], s.MinPower)
	binary.LittleEndian.PutUint16(buf[6:8], s.AvgPower)
	binary.LittleEndian.PutUint16(buf[8:10], s.StdDevPower)
	buf[10] = s.HistogramBinStart
	buf[11] = s.HistogramBinEnd
	return buf
}
