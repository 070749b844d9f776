package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SeldomQA/seldom-atx/cli"
)

// Version information, set by goreleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.New()
	c.SetVersion(version, commit, date)
	if err := c.Run(ctx, os.Args); err != nil {
		stop()
		log.Fatal(err)
	}
}
