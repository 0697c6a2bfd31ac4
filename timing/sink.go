package timing

import (
	"fmt"
	"io"
	"time"
)

// Sink records a named metric. total is the time attributed to units
// operations; implementations report total/units.
type Sink interface {
	Micro(name string, units uint64, total time.Duration) error
}

// TextSink writes "<name>: <usec> microseconds" lines.
type TextSink struct {
	W io.Writer
}

// Micro implements Sink.
func (s TextSink) Micro(name string, units uint64, total time.Duration) error {
	if units == 0 {
		return fmt.Errorf("timing: metric %q has no units", name)
	}
	usec := float64(total.Nanoseconds()) / 1e3 / float64(units)
	_, err := fmt.Fprintf(s.W, "%s: %.4f microseconds\n", name, usec)
	return err
}
