package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"

	gateService "checkin/internal/gate/service"
	gateStore "checkin/internal/gate/store"
	"checkin/internal/platform/config"
	platformRedis "checkin/internal/platform/redis"
)

// runGate reads or sets the shared gate. Only the Redis gate is shared
// between processes, so REDIS_URL is required.
func runGate(ctx context.Context, cfg config.Server, log *slog.Logger, args []string) error {
	client, err := platformRedis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("REDIS_URL is required")
	}
	defer client.Close()

	gate, err := gateService.New(gateStore.NewRedis(client, gateStore.DefaultKey), gateService.WithLogger(log))
	if err != nil {
		return err
	}

	var enabled bool
	switch {
	case len(args) == 0:
		enabled, err = gate.Enabled(ctx)
	case args[0] == "on":
		enabled, err = gate.Set(ctx, true)
	case args[0] == "off":
		enabled, err = gate.Set(ctx, false)
	default:
		return fmt.Errorf("unknown gate state %q, want on or off", args[0])
	}
	if err != nil {
		return err
	}

	if enabled {
		color.Green("check-in is open")
	} else {
		color.Red("check-in is closed")
	}
	return nil
}
