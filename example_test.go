package pagefault_test

import (
	"fmt"
	"time"

	"github.com/hupe1980/pagefault"
	"github.com/hupe1980/pagefault/timing"
)

// ExampleCalibrate subtracts the mapping baseline from the combined time
// of four iterations over a 2 MiB fault source.
func ExampleCalibrate() {
	combined := timing.Result{Elapsed: 12 * time.Millisecond, Iterations: 4}
	baseline := timing.Result{Elapsed: 2 * time.Millisecond, Iterations: 4}

	r, err := pagefault.Calibrate(combined, baseline, 512)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(r.Faults(), r.Delta(), r.PerFault())
	// Output: 2048 10ms 4.883µs
}
