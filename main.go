package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/8gabri8/TST-bioimage/cmd"
	"github.com/8gabri8/TST-bioimage/internal/analysis"
	"github.com/8gabri8/TST-bioimage/internal/buildinfo"
	"github.com/8gabri8/TST-bioimage/internal/conf"
	"github.com/8gabri8/TST-bioimage/internal/logger"
	"github.com/8gabri8/TST-bioimage/internal/telemetry"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = ""
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(centralLogger)
	defer func() {
		if err := centralLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
		}
	}()

	info := buildinfo.NewContext(version, buildDate)
	analysis.Version = info.GetVersion()

	if settings.Sentry.Enabled {
		if err := telemetry.InitSentry(settings, info.GetVersion()); err != nil {
			logger.Global().Module("main").Warn("error telemetry disabled", logger.Error(err))
		} else {
			defer telemetry.Flush(2 * time.Second)
		}
	}

	// Interrupts stop the run before the next entry; the report is still written
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings, info)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
