// Package rtmidi opens a midiout.Port on the system rtmidi driver.  It is the
// only package linking the cgo rtmidi bindings.
package rtmidi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/sonic-plants/internal/midiout"
)

// Open initialises the rtmidi driver and connects to a port if one is
// available.  Call Close() on the port when done.
func Open(opts midiout.Options) (*midiout.Port, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	p := midiout.NewWithDriver(drv, opts)
	p.Tick()
	return p, nil
}
