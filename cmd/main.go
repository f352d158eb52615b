package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/mindmesh-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	a.Start(ctx)
	runErr := a.Run(ctx)
	if runErr != nil {
		a.Log.Error("Server exited", "error", runErr)
	} else {
		a.Log.Info("Server stopped")
	}
	a.Close()
	if runErr != nil {
		os.Exit(1)
	}
}
