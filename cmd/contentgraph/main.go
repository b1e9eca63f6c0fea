package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/contentgraph/internal/cmd/contentgraph"
	"github.com/louisbranch/contentgraph/internal/platform/config"
)

func main() {
	log.SetPrefix("[CONTENTGRAPH] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := contentgraph.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
