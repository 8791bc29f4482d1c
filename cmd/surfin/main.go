// Command surfin runs and inspects batch jobs.
//
//	surfin run helloJob name=surfin
//	surfin run forecastJob 'date(date)=2024-01-01' '-stations(long)=5'
//	surfin next helloJob
//	surfin jobs
//	surfin executions forecastJob
//	surfin migrate up
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
