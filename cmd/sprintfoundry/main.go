// Command sprintfoundry is the SprintFoundry orchestration engine CLI.
package main

import (
	"context"
	"os"

	"github.com/sprintfoundry/sprintfoundry/internal/cli"
	"github.com/sprintfoundry/sprintfoundry/internal/signal"
)

// Build information, injected via ldflags.
var (
	version = "dev"     //nolint:gochecknoglobals // ldflags target
	commit  = "none"    //nolint:gochecknoglobals // ldflags target
	date    = "unknown" //nolint:gochecknoglobals // ldflags target
)

func main() {
	handler := signal.NewHandler(context.Background())
	defer handler.Stop()

	info := cli.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := cli.Execute(handler.Context(), info); err != nil {
		handler.Stop()
		os.Exit(1)
	}
}
