package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/fleetgrid/fleettrack/internal/config"
	"github.com/fleetgrid/fleettrack/internal/kvstore"
	"github.com/fleetgrid/fleettrack/internal/selection"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	ConfigDir string
	Command   string // "" runs the daemon, "dump" prints persisted selection
}

func parseArgs(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("fleettrackd", flag.ContinueOnError)
	configDir := fs.String("config", ".", "directory containing fleettrack.cfg.json")
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts := cliOptions{ConfigDir: *configDir}
	rest := fs.Args()
	if len(rest) > 0 {
		opts.Command = rest[0]
	}
	switch opts.Command {
	case "", "dump":
	default:
		return cliOptions{}, fmt.Errorf("unknown command: %s", opts.Command)
	}
	return opts, nil
}

// dumpSelection prints the persisted selection state as JSON. Useful
// for inspecting what a crashed session left behind.
func dumpSelection(opts cliOptions) error {
	if err := config.Load(opts.ConfigDir); err != nil {
		return err
	}

	kv, err := kvstore.New(kvstore.Config{
		Backend:      config.GetString("store.backend"),
		Path:         config.GetString("store.path"),
		DSN:          config.GetString("store.dsn"),
		PollInterval: config.GetMillis("store.pollIntervalMs"),
	}, zerolog.New(os.Stderr))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	out := make(map[string]json.RawMessage)
	for _, key := range []string{selection.KeyVehicle, selection.KeyDateRange, selection.KeySplitMode} {
		value, ok, err := kv.Get(key)
		if err != nil || !ok {
			continue
		}
		if json.Valid(value) {
			out[key] = json.RawMessage(value)
		} else {
			raw, _ := json.Marshal(string(value))
			out[key] = raw
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
