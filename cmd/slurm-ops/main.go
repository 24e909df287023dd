package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/omnivector-solutions/slurm-ops-manager/internal/facts"
)

var Version string

func main() {
	cliflags := make(map[string]any)
	ctx := context.Background()

	var configFile string

	app := &cli.Command{
		Name:  "slurm-ops",
		Usage: "Install and configure slurm daemons on this host",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Specified TOML config file",
				Required:    false,
				Destination: &configFile,
				Aliases:     []string{"c"},
				Sources:     cli.EnvVars("SLURM_OPS_CONFIG"),
				Action: func(ctx context.Context, cCtx *cli.Command, v string) error {
					if v == "" {
						return errors.New("config file passed without value")
					}
					if _, err := os.Stat(v); err != nil && os.IsNotExist(err) {
						return errors.New("config file not found")
					} else if err != nil {
						return err
					}
					return nil
				},
			},
			&cli.StringFlag{
				Name:    "role",
				Usage:   "Slurm daemon this host runs (slurmctld, slurmd, slurmdbd, slurmrestd)",
				Aliases: []string{"r"},
				Sources: cli.EnvVars("SLURM_OPS_ROLE"),
				Action: func(ctx context.Context, cm *cli.Command, v string) error {
					cliflags["role"] = v
					return nil
				},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("SLURM_OPS_DEBUG"),
				Action: func(ctx context.Context, cm *cli.Command, b bool) error {
					cliflags["debug"] = true
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Dump active config",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					c, err := loadConfig(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					fmt.Println(c)
					return nil
				},
			},
			{
				Name:  "facts",
				Usage: "Display host facts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "inventory",
						Usage:   "Print only the node's slurm.conf inventory line",
						Aliases: []string{"i"},
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					f, err := facts.NewHostFacts()
					if err != nil {
						return err
					}
					if cCtx.Bool("inventory") {
						fmt.Println(f.Inventory())
						return nil
					}
					fmt.Printf("Hostname: %v\nOS: %v %v\nCPUs: %v\nRealMemory: %v MB\n",
						f.Hostname, f.OS, f.OSVersion, f.CPUs, f.RealMemoryMB)
					return nil
				},
			},
			{
				Name:      "install",
				Usage:     "Install a supplied slurm artifact (tarball or deb) and prepare the host",
				ArgsUsage: "<artifact>",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					artifact := cCtx.Args().First()
					if artifact == "" {
						return cli.Exit("specify an artifact to install", 1)
					}
					m, cleanup, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					defer cleanup()
					if err := m.Install(ctx, artifact); err != nil {
						return cli.Exit(fmt.Sprintf("error installing artifact: %v", err), 1)
					}
					fmt.Println("slurm installed")
					return nil
				},
			},
			{
				Name:  "apply",
				Usage: "Render configuration and restart the affected daemons",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "context",
						Usage:    "YAML file holding the configuration context",
						Aliases:  []string{"f"},
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "diff",
						Usage: "Log a diff of configuration changes",
						Action: func(ctx context.Context, cm *cli.Command, b bool) error {
							cliflags["diffs"] = true
							return nil
						},
					},
				},
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					m, cleanup, err := setup(ctx, configFile, cliflags)
					if err != nil {
						return err
					}
					defer cleanup()
					cc, err := loadContextFile(ctx, cCtx.String("context"), configFile, cliflags)
					if err != nil {
						return err
					}
					if err := m.Apply(ctx, cc); err != nil {
						return cli.Exit(fmt.Sprintf("error applying configuration: %v", err), 1)
					}
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "Show version",
				Action: func(ctx context.Context, cCtx *cli.Command) error {
					fmt.Printf("slurm-ops %v\n", Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
