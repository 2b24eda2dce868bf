package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sjawhar/interview-coach/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Print the effective configuration and any warnings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.Load(configPath)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		w := cmd.OutOrStdout()
		_, _ = fmt.Fprint(w, string(out))
		if len(warnings) == 0 {
			_, _ = fmt.Fprintln(w, "\nno warnings")
			return nil
		}
		_, _ = fmt.Fprintln(w, "\nwarnings:")
		for _, warning := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warning)
		}
		return nil
	},
}
