package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kickspeed/kickspeed/cmd"
	"github.com/kickspeed/kickspeed/internal/buildinfo"
	"github.com/kickspeed/kickspeed/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	build := &buildinfo.Context{
		Version:   version,
		BuildDate: buildDate,
	}

	rootCmd := cmd.RootCommand(settings, build)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		return 1
	}
	return 0
}
