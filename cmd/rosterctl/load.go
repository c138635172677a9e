package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"checkin/internal/platform/config"
	"checkin/internal/platform/postgres"
	"checkin/internal/roster/models"
	rosterStore "checkin/internal/roster/store"
)

// runLoad bulk-inserts a CSV roster. Header cells become field keys exactly as
// written; no column mapping is applied.
func runLoad(ctx context.Context, cfg config.Server, path string) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := rosterStore.ParseCSV(f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		color.Yellow("no rows in %s", path)
		return nil
	}

	// Apply the schema through the shared database/sql path first so a fresh
	// database can be loaded directly.
	db, err := postgres.Open(ctx, postgres.Config{URL: cfg.Database.URL})
	if err != nil {
		return err
	}
	err = postgres.Migrate(ctx, db)
	_ = db.Close()
	if err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := copyRows(records)
	if err != nil {
		return err
	}
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"candidates"}, []string{"id", "fields"}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy candidates: %w", err)
	}
	color.Green("loaded %d candidates from %s", n, path)
	return nil
}

func copyRows(records []models.Record) ([][]any, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows[i] = []any{id, json.RawMessage(payload)}
	}
	return rows, nil
}
