// Command lat_pagefault reports the latency of a hard page fault on a
// memory-mapped file.
//
//	lat_pagefault [-C] [-D] [-S] [-V] [-P <parallel>] [-W <warmup>] [-N <iterations>] file
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := exitCode(ctx, newRootCmd(), os.Args[1:], os.Stderr)
	stop()
	atexit.Exit(code)
}

// exitCode runs cmd and returns the process exit status.
func exitCode(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "lat_pagefault: %v\n", err)
		return 1
	}
	return 0
}
