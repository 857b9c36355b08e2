package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/modallabs/modal-core/internal/config"
	"github.com/modallabs/modal-core/internal/dispatch"
	"github.com/modallabs/modal-core/internal/envelope"
	"github.com/modallabs/modal-core/internal/processor"
	"github.com/modallabs/modal-core/internal/protocol"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'dispatch' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
		envelopePath := validateCmd.String("file", "envelope.json", "Path to envelope submission JSON")
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(*envelopePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("envelope valid")
	case "dispatch":
		dispatchCmd := flag.NewFlagSet("dispatch", flag.ExitOnError)
		envelopePath := dispatchCmd.String("file", "envelope.json", "Path to envelope submission JSON")
		configPath := dispatchCmd.String("config", "", "Path to configuration file (defaults apply when empty)")
		dispatchCmd.Parse(os.Args[2:])
		if err := runDispatch(*envelopePath, *configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func loadEnvelope(path string) (*envelope.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope file: %w", err)
	}
	var submission protocol.EnvelopeSubmission
	if err := json.Unmarshal(data, &submission); err != nil {
		return nil, fmt.Errorf("parse envelope file: %w", err)
	}
	return submission.ToEnvelope()
}

func runValidate(path string) error {
	env, err := loadEnvelope(path)
	if err != nil {
		return err
	}
	return envelope.Validate(env, time.Now().UTC())
}

// runDispatch runs the envelope through a local dispatcher without a bus and
// prints the result event as JSON on stdout.
func runDispatch(envelopePath, configPath string) error {
	env, err := loadEnvelope(envelopePath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	registry, err := processor.NewDefaultRegistry(cfg)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := dispatch.New(registry, dispatch.OptionsFromConfig(cfg.Dispatch), logger)

	result := dispatcher.Dispatch(context.Background(), env)
	event := protocol.ResultFromDispatch(result, cfg.Node.ID, time.Now().UTC())

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(event); err != nil {
		return err
	}
	if result.Failed() {
		os.Exit(1)
	}
	return nil
}
