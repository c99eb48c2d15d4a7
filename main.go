// udpframed - framed message exchange over UDP with per-peer eviction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"udpframed/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "udpframed: %v\n", err)
		os.Exit(1)
	}
}
