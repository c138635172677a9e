// Command rosterctl is the operator tool for the check-in service: it prints
// reports, flips the admission gate and loads development rosters.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"checkin/internal/platform/config"
	"checkin/internal/platform/logger"
)

const usage = `usage: rosterctl <command> [flags]

commands:
  report [-limit n]   date/paper table, recent check-ins and summary
  gate [on|off]       show or set the admission gate
  load <file.csv>     insert raw roster rows (development only)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		color.Red("config: %v", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "report":
		fs := flag.NewFlagSet("report", flag.ExitOnError)
		limit := fs.Int("limit", 10, "recent check-ins to show")
		_ = fs.Parse(args)
		err = runReport(ctx, cfg, *limit)
	case "gate":
		err = runGate(ctx, cfg, log, args)
	case "load":
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		err = runLoad(ctx, cfg, args[0])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		color.Red("%s: %v", os.Args[1], err)
		os.Exit(1)
	}
}
