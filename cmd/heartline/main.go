package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	err := newCLIApp(os.Stdin, os.Stdout).RunContext(ctx, os.Args)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "heartline:", err)
		os.Exit(1)
	}
}
