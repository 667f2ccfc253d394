package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/guests/ed25519verify"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
	"github.com/vybium/vybium-zkexec/pkg/vybium-zkexec"
)

const defaultMessage = "This is a test of the tsunami alert system."

const usage = `usage: vybium-zkexec-host [-config file] [-log-level level] <command> [flags]

commands:
  prove   sign a message with a fresh key, prove the signature verifies, verify the receipt
  verify  check a receipt file against a prover key and program identity
  bench   run the Edwards25519 arithmetic benchmark guest
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	config *vybiumzkexec.Config
	logger *slog.Logger
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vybium-zkexec-host", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "YAML config file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr, config: vybiumzkexec.DefaultConfig()}
	if *configPath != "" {
		config, err := vybiumzkexec.LoadConfig(*configPath)
		if err != nil {
			return c.fatal(err)
		}
		c.config = config
	}
	if *logLevel != "" {
		c.config = c.config.WithLogLevel(*logLevel)
	}
	level, err := utils.ParseLogLevel(c.config.LogLevel)
	if err != nil {
		return c.fatal(err)
	}
	c.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cmd, rest := "prove", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	ctx := context.Background()
	switch cmd {
	case "prove":
		return c.prove(ctx, rest)
	case "verify":
		return c.verify(ctx, rest)
	case "bench":
		return c.bench(ctx, rest)
	default:
		c.logStderr(fmt.Sprintf("unknown command %q", cmd))
		fs.Usage()
		return 2
	}
}

func (c *cli) prove(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	out := fs.String("out", "", "write the receipt as JSON to this file")
	message := fs.String("message", defaultMessage, "message to sign")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return c.fatal(fmt.Errorf("failed to generate signing key: %w", err))
	}
	msg := []byte(*message)
	sig := ed25519.Sign(priv, msg)

	host, err := vybiumzkexec.NewHost(ctx, c.config, vybiumzkexec.WithLogger(c.logger))
	if err != nil {
		return c.fatal(err)
	}
	defer host.Close(ctx)

	c.logStderr("Proving signature verification...")
	session, receipt, err := host.ProveEd25519Verification(ctx, pub, msg, sig)
	if err != nil {
		return c.fatal(err)
	}
	for _, s := range session.Samples {
		fmt.Fprintln(c.stdout, s)
	}

	if err := host.Verify(receipt, host.Ed25519VerifyID()); err != nil {
		return c.fatal(err)
	}

	fmt.Fprintf(c.stdout, "image:      %s\n", host.Ed25519VerifyID())
	fmt.Fprintf(c.stdout, "prover key: %s\n", hex.EncodeToString(host.ProverPublicKey()))
	fmt.Fprintln(c.stdout, "receipt verified")

	if *out != "" {
		data, err := vybiumzkexec.MarshalReceipt(receipt)
		if err != nil {
			return c.fatal(err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return c.fatal(fmt.Errorf("failed to write receipt: %w", err))
		}
		c.logStderr("Receipt written to " + *out)
	}
	return 0
}

func (c *cli) verify(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	receiptPath := fs.String("receipt", "", "receipt JSON file")
	proverKey := fs.String("prover-key", "", "hex encoded prover public key")
	image := fs.String("image", "", "hex encoded program identity (default: ed25519 verification guest)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *receiptPath == "" || *proverKey == "" {
		c.logStderr("verify needs -receipt and -prover-key")
		return 2
	}

	data, err := os.ReadFile(*receiptPath)
	if err != nil {
		return c.fatal(fmt.Errorf("failed to read receipt: %w", err))
	}
	receipt, err := vybiumzkexec.UnmarshalReceipt(data)
	if err != nil {
		return c.fatal(err)
	}

	key, err := hex.DecodeString(*proverKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return c.fatal(fmt.Errorf("prover key must be %d hex encoded bytes", ed25519.PublicKeySize))
	}

	host, err := vybiumzkexec.NewHost(ctx, c.config,
		vybiumzkexec.WithLogger(c.logger),
		vybiumzkexec.WithTrustedProver(ed25519.PublicKey(key)),
	)
	if err != nil {
		return c.fatal(err)
	}
	defer host.Close(ctx)

	id := host.Ed25519VerifyID()
	if *image != "" {
		id, err = vybiumzkexec.ParseImageID(*image)
		if err != nil {
			return c.fatal(fmt.Errorf("invalid image: %w", err))
		}
	}

	if err := host.Verify(receipt, id); err != nil {
		return c.fatal(err)
	}

	if id == host.Ed25519VerifyID() {
		if vk, msg, err := ed25519verify.DecodeJournal(receipt.Journal); err == nil {
			fmt.Fprintf(c.stdout, "verifying key: %s\n", hex.EncodeToString(vk))
			fmt.Fprintf(c.stdout, "message:       %q\n", msg)
		}
	}
	fmt.Fprintf(c.stdout, "receipt verified for image %s\n", id)
	return 0
}

func (c *cli) bench(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	host, err := vybiumzkexec.NewHost(ctx, c.config, vybiumzkexec.WithLogger(c.logger))
	if err != nil {
		return c.fatal(err)
	}
	defer host.Close(ctx)

	sections, err := host.Benchmark(ctx)
	if err != nil {
		return c.fatal(err)
	}
	for _, s := range sections {
		if err := bench.Report(c.stdout, s.Name, s.Samples); err != nil {
			return c.fatal(err)
		}
	}
	return 0
}

func (c *cli) logStderr(msg string) {
	fmt.Fprintln(c.stderr, "vybium-zkexec:", msg)
}

func (c *cli) fatal(err error) int {
	c.logStderr("ERROR: " + err.Error())
	var zkErr *vybiumzkexec.Error
	if errors.As(err, &zkErr) && zkErr.Code == vybiumzkexec.ErrVerificationFailure {
		return 3
	}
	return 1
}
