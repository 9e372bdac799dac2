// internal/protocol/histogram.go
package protocol

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Histogram is the shot power distribution over the populated bin range.
// Labels and Counts are index-aligned.
type Histogram struct {
	Labels []string `json:"labels"`
	Counts []uint32 `json:"counts"`
}

// Len returns the number of bins.
func (h Histogram) Len() int { return len(h.Counts) }

// Empty reports whether no bins are present.
func (h Histogram) Empty() bool { return len(h.Counts) == 0 }

// BinThreshold returns the lower power bound of absolute bin i.
func BinThreshold(i int) int {
	return HistogramMinPower + i*HistogramBinWidth
}

// DecodeHistogram rebuilds the histogram from the three device chunks.
//
// Absolute bin i lives in chunks[i/20][i%20]. When the statistics carry no
// shots, or the chunk count is not exactly three, the result is empty.
//
// The device only widens the bin range for shots inside the histogram's
// power window, so shots outside it leave the initial inverted range
// (start > end) in place. That also yields an empty histogram.
func DecodeHistogram(stats Statistics, chunks [][]byte) (Histogram, error) {
	if stats.TotalShots == 0 || len(chunks) != HistogramChunkCount {
		return Histogram{}, nil
	}

	start := int(stats.HistogramBinStart)
	end := int(stats.HistogramBinEnd)
	if start > end {
		return Histogram{}, nil
	}
	if end >= HistogramBins {
		return Histogram{}, fmt.Errorf("%w: histogram bin %d beyond %d",
			ErrMalformedPayload, end, HistogramBins-1)
	}

	n := end - start + 1
	h := Histogram{
		Labels: make([]string, n),
		Counts: make([]uint32, n),
	}

	for i := start; i <= end; i++ {
		block := i / HistogramChunkLen
		offset := i - block*HistogramChunkLen

		chunk := chunks[block]
		if offset >= len(chunk) {
			return Histogram{}, fmt.Errorf("%w: histogram chunk %d has %d bytes, bin %d needs offset %d",
				ErrMalformedPayload, block, len(chunk), i, offset)
		}

		h.Counts[i-start] = uint32(chunk[offset])
		h.Labels[i-start] = strconv.Itoa(BinThreshold(i))
	}

	return h, nil
}

// Summary is a distribution estimate computed from the histogram alone.
type Summary struct {
	Shots  uint32  `json:"shots"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// Summary estimates the mean and standard deviation of shot power using bin
// centers weighted by counts. Shots outside the histogram range are not seen.
func (h Histogram) Summary() Summary {
	var s Summary
	if h.Empty() {
		return s
	}

	x := make([]float64, 0, len(h.Counts))
	w := make([]float64, 0, len(h.Counts))
	for i, c := range h.Counts {
		threshold, err := strconv.Atoi(h.Labels[i])
		if err != nil {
			continue
		}
		x = append(x, float64(threshold)+HistogramBinWidth/2)
		w = append(w, float64(c))
		s.Shots += c
	}

	if s.Shots == 0 {
		return s
	}

	if s.Shots == 1 {
		s.Mean = stat.Mean(x, w)
		return s
	}

	s.Mean, s.StdDev = stat.MeanStdDev(x, w)
	return s
}
