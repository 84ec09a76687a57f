package engine

import (
	"math"
	"strconv"
	"strings"
)

// Wire keys of the inbound datagram.
const (
	KeyAmplitude = "uV"
	KeyThreshold = "THR"
	KeyNote      = "MIDI"
	KeyDuration  = "DUR"

	fieldSep = ";"
	kvSep    = ":"
)

// SamplePacket is one decoded datagram.  Only Amplitude is mandatory; the
// optional fields are nil when absent or unparseable.
type SamplePacket struct {
	Amplitude float64
	Threshold *float64 // detector threshold override, µV
	Note      *int     // MIDI note number 0-127
	Duration  *float64 // note duration hint, seconds
}

// Decode parses a datagram of the form
//
//	uV:123.4;THR:50;MIDI:60;DUR:0.5
//
// Unknown keys and bad values are dropped field by field.  ok is false when
// no usable amplitude was found.
func Decode(data []byte) (p SamplePacket, ok bool) {
	s := strings.TrimSpace(string(data))
	for _, part := range strings.Split(s, fieldSep) {
		key, val, found := strings.Cut(strings.TrimSpace(part), kvSep)
		if !found {
			continue
		}
		val = strings.TrimSpace(val)
		switch key {
		case KeyAmplitude:
			if v, err := strconv.ParseFloat(val, 64); err == nil && finite(v) {
				p.Amplitude = v
				ok = true
			}
		case KeyThreshold:
			if v, err := strconv.ParseFloat(val, 64); err == nil && finite(v) && v > 0 {
				p.Threshold = &v
			}
		case KeyNote:
			if v, err := strconv.Atoi(val); err == nil && v >= 0 && v <= 127 {
				p.Note = &v
			}
		case KeyDuration:
			if v, err := strconv.ParseFloat(val, 64); err == nil && finite(v) && v >= 0 {
				p.Duration = &v
			}
		}
	}
	return p, ok
}

// Encode builds the on-wire representation.  Optional fields are emitted
// only when set, in the order uV, THR, MIDI, DUR.
func (p SamplePacket) Encode() []byte {
	fields := []string{KeyAmplitude + kvSep + formatFloat(p.Amplitude)}
	if p.Threshold != nil {
		fields = append(fields, KeyThreshold+kvSep+formatFloat(*p.Threshold))
	}
	if p.Note != nil {
		fields = append(fields, KeyNote+kvSep+strconv.Itoa(*p.Note))
	}
	if p.Duration != nil {
		fields = append(fields, KeyDuration+kvSep+formatFloat(*p.Duration))
	}
	return []byte(strings.Join(fields, fieldSep))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
