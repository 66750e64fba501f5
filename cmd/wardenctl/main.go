// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// wardenctl mints, inspects, and checks capability hand-off envelopes
// from the command line. It is the operator-facing edge of the kernel:
// profiles go in, envelopes come out, and envelopes can be queried
// without loading them into a live process.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/handoff"
	"github.com/warden-project/warden/lib/profile"
	"github.com/warden-project/warden/lib/scope"
	"github.com/warden-project/warden/lib/secret"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch os.Args[1] {
	case "mint":
		return runMint(os.Args[2:])
	case "inspect":
		return runInspect(os.Args[2:])
	case "check":
		return runCheck(os.Args[2:])
	case "keygen":
		return runKeygen()
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: wardenctl <subcommand> [flags]

Subcommands:
  mint      Mint a profile's grants into a hand-off envelope
  inspect   Decode an envelope and print the record as JSON
  check     Test an access against an envelope's capabilities
  keygen    Generate an envelope seal key

Run 'wardenctl <subcommand> --help' for subcommand flags.
`)
}

// newLogger builds the CLI logger: text on a terminal, JSON when
// stderr is piped.
func newLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func runMint(args []string) error {
	flags := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	profilePath := flags.String("profile", "", "profile file (YAML or JSONC) declaring the grants")
	name := flags.String("name", "", "scope name (defaults to the profile name)")
	compressionName := flags.String("compression", "zstd", "envelope compression: none, lz4, zstd")
	sealKeyFile := flags.String("seal-key-file", "", "seal the envelope with the key in this file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *profilePath == "" {
		return fmt.Errorf("--profile is required")
	}
	compression, err := handoff.ParseCompression(*compressionName)
	if err != nil {
		return err
	}

	p, err := profile.Load(*profilePath)
	if err != nil {
		return err
	}

	// The minting keyring is throwaway: checksums never travel, the
	// importing side re-mints them under its own keyring.
	keyring, err := capability.NewKeyring(capability.KeyringOptions{})
	if err != nil {
		return err
	}
	defer keyring.Close()

	tokens, err := p.Mint(keyring)
	if err != nil {
		return err
	}
	scopeName := *name
	if scopeName == "" {
		scopeName = p.Name
	}
	s := scope.New(scopeName, nil)
	defer s.Close()
	for _, token := range tokens {
		if err := s.AddCapability(token); err != nil {
			return err
		}
	}

	envelope, err := handoff.Serialize(s, time.Now(), compression)
	if err != nil {
		return err
	}
	if *sealKeyFile != "" {
		key, err := readSealKey(*sealKeyFile)
		if err != nil {
			return err
		}
		defer key.Close()
		if envelope, err = handoff.Seal(envelope, key); err != nil {
			return err
		}
	}
	fmt.Println(envelope)
	return nil
}

func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	sealKeyFile := flags.String("seal-key-file", "", "open a sealed envelope with the key in this file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	envelope, err := readEnvelope(flags.Args(), *sealKeyFile)
	if err != nil {
		return err
	}
	record, err := handoff.Decode(envelope)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(record)
}

func runCheck(args []string) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	typeName := flags.String("type", "", "capability type to check (file, network, math, subprocess)")
	resource := flags.String("resource", "", "resource path to test")
	operation := flags.String("op", "read", "operation to test")
	host := flags.String("host", "", "host to test (network checks)")
	port := flags.Int("port", 0, "port to test (network checks)")
	sealKeyFile := flags.String("seal-key-file", "", "open a sealed envelope with the key in this file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *typeName == "" {
		return fmt.Errorf("--type is required")
	}
	typ, err := capability.ParseType(*typeName)
	if err != nil {
		return err
	}

	envelope, err := readEnvelope(flags.Args(), *sealKeyFile)
	if err != nil {
		return err
	}
	keyring, err := capability.NewKeyring(capability.KeyringOptions{})
	if err != nil {
		return err
	}
	defer keyring.Close()

	s, skipped, err := handoff.Deserialize(keyring, envelope, handoff.ImportOptions{Logger: newLogger()})
	if err != nil {
		return err
	}
	defer s.Close()
	for _, skip := range skipped {
		fmt.Fprintf(os.Stderr, "warning: %v\n", skip)
	}

	allowed := false
	if *host != "" || *port != 0 {
		if token, err := s.Capability(typ, false); err == nil {
			allowed = token.CanReach(*host, *port)
		}
	} else {
		allowed = s.CanAccess(typ, *resource, *operation)
	}
	if !allowed {
		fmt.Println("denied")
		return fmt.Errorf("access denied")
	}
	fmt.Println("allowed")
	return nil
}

// runKeygen prints a fresh base64 seal key. Store it somewhere both
// sides of the hand-off boundary can read; it never belongs inside an
// envelope.
func runKeygen() error {
	key, err := handoff.NewSealKey()
	if err != nil {
		return err
	}
	defer key.Close()
	fmt.Println(base64.StdEncoding.EncodeToString(key.Bytes()))
	return nil
}

// readSealKey loads a base64 seal key (as produced by keygen) into
// protected memory.
func readSealKey(path string) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seal key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("seal key in %s is not base64: %w", path, err)
	}
	return secret.NewFromBytes(raw)
}

// readEnvelope takes the envelope from the first positional argument,
// or from stdin when none is given, and opens it if a seal key is
// supplied.
func readEnvelope(args []string, sealKeyFile string) (string, error) {
	var envelope string
	if len(args) > 0 {
		envelope = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading envelope from stdin: %w", err)
		}
		envelope = strings.TrimSpace(string(data))
	}
	if envelope == "" {
		return "", fmt.Errorf("no envelope given")
	}
	if sealKeyFile != "" {
		key, err := readSealKey(sealKeyFile)
		if err != nil {
			return "", err
		}
		defer key.Close()
		return handoff.Open(envelope, key)
	}
	return envelope, nil
}
