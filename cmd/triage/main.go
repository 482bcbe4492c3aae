package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/yungbote/triage-backend/internal/app"
	"github.com/yungbote/triage-backend/internal/platform/shutdown"
)

// loadDotenv reads TRIAGE_ENV_FILE (default .env) for local runs. Variables
// already set in the environment win.
func loadDotenv() {
	path := os.Getenv("TRIAGE_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		fmt.Printf("ignoring env file %s: %v\n", path, err)
	}
}

func main() {
	loadDotenv()

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Run(ctx); err != nil {
		fmt.Printf("server exited: %v\n", err)
		os.Exit(1)
	}
}
