// VocalX is a terminal client for the VocalX voice-processing backend:
// record, apply effects, dub, anonymize and clone voices.
//
// Usage:
//
//	vocalx [--config vocalx.toml] [--verbose|--quiet] <command>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
