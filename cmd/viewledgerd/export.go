package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"viewledger/config"
	"viewledger/services/eventindex"
)

// runExport writes indexed ledger events to a parquet file for offline
// reconciliation. It reads the index database only, so it can run beside a
// live daemon.
func runExport(args []string) error {
	fs := flag.NewFlagSet(exportEventsCmd, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the configuration file")
	out := fs.String("out", "events.parquet", "Output parquet file")
	eventType := fs.String("type", "", "Only export events of this type")
	videoID := fs.Uint64("video", 0, "Only export events for this video id")
	address := fs.String("address", "", "Only export events where this bech32 address is actor or subject")
	afterSeq := fs.Uint64("after", 0, "Only export events with a sequence number above this value")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.EventIndex.Enabled {
		return errors.New("event index is disabled in config")
	}
	gdb, err := eventindex.Open(cfg.EventIndex.Driver, cfg.EventIndexDSN())
	if err != nil {
		return fmt.Errorf("open event index: %w", err)
	}
	store, err := eventindex.New(gdb, nil)
	if err != nil {
		return err
	}

	written, err := store.ExportParquet(context.Background(), strings.TrimSpace(*out), eventindex.Filter{
		Type:     *eventType,
		VideoID:  *videoID,
		Address:  *address,
		AfterSeq: *afterSeq,
	})
	if err != nil {
		return fmt.Errorf("export events: %w", err)
	}
	fmt.Printf("Exported %d events to %s\n", written, *out)
	return nil
}
