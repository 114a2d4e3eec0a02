package main

import (
	"github.com/joho/godotenv"

	"rxbench/internal/cli"
	_ "rxbench/internal/fetcher/providers"
)

// These variables are populated by the build via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; tokens and RXBENCH_* overrides may come from it.
	_ = godotenv.Load()

	cli.SetBuildInfo(version, commit, date)
	cli.Execute()
}
