package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/code-payments/metadata-provisioner/pkg/app"
	"github.com/code-payments/metadata-provisioner/pkg/metrics"
	"github.com/code-payments/metadata-provisioner/pkg/provision"
	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
)

const shutdownTimeout = 5 * time.Second

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

type environment struct {
	config *app.Config
	w      io.Writer
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.StandardLogger().WithError(err).WithField("type", "cmd/provision-metadata").Error(describe(err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "provision-metadata"
	a.Usage = "create token metadata for an existing Solana mint"
	a.Version = version

	a.Writer = os.Stdout
	a.ErrWriter = os.Stderr

	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "config.yaml",
			Usage: " configuration `FILE`",
		},
		cli.StringFlag{
			Name:  "endpoint, e",
			Usage: " RPC `URL` or cluster name [devnet|testnet|mainnet-beta]",
		},
		cli.StringFlag{
			Name:  "log-level, l",
			Usage: " log `LEVEL`",
		},
	}

	a.Before = func(c *cli.Context) error {
		config, err := app.LoadConfig(c.GlobalString("config"))
		if err != nil {
			return err
		}
		if endpoint := c.GlobalString("endpoint"); len(endpoint) > 0 {
			config.Endpoint = endpoint
		}
		if level := c.GlobalString("log-level"); len(level) > 0 {
			config.LogLevel = level
		}

		c.App.Metadata["env"] = &environment{
			config: config,
			w:      c.App.Writer,
		}
		return nil
	}

	a.Commands = []cli.Command{
		{
			Name:   "provision",
			Usage:  "create the metadata account for the configured mint",
			Action: runProvision,
		},
		{
			Name:  "derive",
			Usage: "print the metadata and master edition addresses of a mint",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "mint, m",
					Usage: " mint `ADDRESS` [default: configured mint]",
				},
			},
			Action: runDerive,
		},
		{
			Name:  "plan",
			Usage: "validate the configuration and print the unsigned instruction",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "payer, p",
					Usage: " payer `ADDRESS` [default: configured keypair]",
				},
			},
			Action: runPlan,
		},
	}

	return a
}

func runProvision(c *cli.Context) error {
	env := c.App.Metadata["env"].(*environment)
	config := env.config

	metricsProvider, err := app.NewMetricsProvider(config)
	if err != nil {
		return err
	}
	app.ConfigureLogger(config, metricsProvider, os.Stderr)
	if metricsProvider != nil {
		defer metricsProvider.Shutdown(shutdownTimeout)
	}

	commitment, err := solana.ParseCommitment(config.Commitment)
	if err != nil {
		return err
	}

	keypair, err := app.LoadKeypair(config)
	if err != nil {
		return &provision.StageError{Stage: provision.StageConfigure, Err: err}
	}
	defer solana.ZeroKey(keypair)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = metrics.NewContext(ctx, metricsProvider)

	provisioner := provision.NewProvisioner(
		solana.New(solana.ResolveEndpoint(config.Endpoint)),
		provision.WithCommitment(commitment),
		provision.WithMasterEdition(config.MasterEdition),
	)

	receipt, err := provisioner.Provision(ctx, keypair, config.Asset)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.w, "Metadata PDA: %s\n", base58.Encode(receipt.Metadata))
	return nil
}

func runDerive(c *cli.Context) error {
	env := c.App.Metadata["env"].(*environment)

	cfg := env.config.Asset
	if mint := c.String("mint"); len(mint) > 0 {
		cfg.Mint = mint
	}

	mint, err := cfg.MintKey()
	if err != nil {
		return err
	}

	metadata, bump, err := tokenmetadata.GetMetadataAddress(&tokenmetadata.GetMetadataAddressArgs{Mint: mint})
	if err != nil {
		return err
	}
	masterEdition, _, err := tokenmetadata.GetMasterEditionAddress(&tokenmetadata.GetMasterEditionAddressArgs{Mint: mint})
	if err != nil {
		return err
	}

	fmt.Fprintf(env.w, "Metadata PDA: %s (bump %d)\n", base58.Encode(metadata), bump)
	fmt.Fprintf(env.w, "Master Edition PDA: %s\n", base58.Encode(masterEdition))
	return nil
}

func runPlan(c *cli.Context) error {
	env := c.App.Metadata["env"].(*environment)

	var payer ed25519.PublicKey
	if address := c.String("payer"); len(address) > 0 {
		decoded, err := base58.Decode(address)
		if err != nil {
			return errors.Wrap(provision.ErrConfiguration, "payer is not valid base58")
		}
		payer = decoded
	} else {
		keypair, err := app.LoadKeypair(env.config)
		if err != nil {
			return err
		}
		payer = keypair.Public().(ed25519.PublicKey)
		solana.ZeroKey(keypair)
	}

	provisioner := provision.NewProvisioner(nil, provision.WithMasterEdition(env.config.MasterEdition))
	plan, err := provisioner.Plan(payer, env.config.Asset)
	if err != nil {
		return err
	}

	fmt.Fprint(env.w, plan.String())
	return nil
}

// describe names the failing stage for operators.
func describe(err error) string {
	var stageErr *provision.StageError
	if errors.As(err, &stageErr) {
		return fmt.Sprintf("provisioning failed during %s", stageErr.Stage)
	}
	return "provisioning failed"
}
