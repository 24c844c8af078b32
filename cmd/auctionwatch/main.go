// Command auctionwatch runs the auction listing tracker: three scheduled
// pipelines over a PostgreSQL store plus a Prometheus metrics listener.
//
// Flags:
//
//	--once  run every enabled pipeline a single time and exit
//
// Configuration is read from CONFIG_PATH (fallback ./config.yaml) and
// environment variables. Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/heartmarshall/auctionwatch/internal/app"
)

func main() {
	onceFlag := flag.Bool("once", false, "run every enabled pipeline once and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Options{Once: *onceFlag}); err != nil {
		log.Printf("auctionwatch: %v", err)
		os.Exit(1)
	}
}
