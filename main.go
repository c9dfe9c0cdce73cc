package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"

	cmd "github.com/idlab-discover/anomalyfusion-cli/cmd/anomalyfusion-cli"
	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
	"github.com/idlab-discover/anomalyfusion-cli/internal/ui"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Interrupting a run stops sensor acquisition instead of killing the
	// process half way through writing the grid or the archive.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd.SetVersion(Version)
	err := fang.Execute(ctx, cmd.GetRootCmd(), fang.WithColorSchemeFunc(ui.FangColorScheme))
	stop()
	os.Exit(apperr.ExitCode(err))
}
