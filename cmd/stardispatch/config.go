package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/stardispatch/internal/config"
	"github.com/mattjoyce/stardispatch/internal/doctor"
)

// loadConfig resolves the config path (flag, then discovery) and loads it.
// With allowDefaults, a failed discovery falls back to built-in defaults
// and an empty path.
func loadConfig(g *globalFlags, stderr io.Writer, allowDefaults bool) (*config.Config, string, error) {
	path := g.configPath
	if path == "" {
		discovered, err := config.DiscoverConfigFile()
		if err != nil {
			if !allowDefaults {
				return nil, "", fmt.Errorf("failed to discover config: %w", err)
			}
			fmt.Fprintln(stderr, "No config file found; using defaults")
			return config.Defaults(), "", nil
		}
		path = discovered
		fmt.Fprintf(stderr, "Using discovered config: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the configuration",
	}
	cmd.AddCommand(configCheckCmd(g), configShowCmd(g))
	return cmd
}

func configCheckCmd(g *globalFlags) *cobra.Command {
	var (
		expect  string
		strict  bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print its fingerprint",
		Long: `Validate the configuration file and report its BLAKE3 fingerprint.

Exit codes: 0 valid, 1 invalid (or fingerprint mismatch with --expect),
2 warnings present with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(g, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}

			result := doctor.New(cfg, path, expect).Validate()
			out := cmd.OutOrStdout()
			if jsonOut {
				s, err := doctor.FormatJSON(result)
				if err != nil {
					return fmt.Errorf("JSON format error: %w", err)
				}
				fmt.Fprintln(out, s)
			} else {
				fmt.Fprint(out, doctor.FormatHuman(result))
			}

			if !result.Valid {
				return &exitError{code: 1}
			}
			if strict && len(result.Warnings) > 0 {
				return &exitError{code: 2}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expect, "expect", "", "Fail unless the config fingerprint matches (blake3:<hex>)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON")
	return cmd
}

func configShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
