package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/promptpolish/cli/cmd"
)

// Populated at build time via ldflags.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	_ = godotenv.Load()

	cmd.SetMetadata(cmd.Metadata{
		Version:   version,
		Commit:    commit,
		BuildDate: date,
	})

	if err := fang.Execute(
		context.Background(),
		cmd.Root(),
		fang.WithVersion(cmd.Version()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
