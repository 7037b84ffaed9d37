package main

import (
	"github.com/spf13/cobra"

	"github.com/fantasyctl/yfa/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Out, cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, cc.Out)
}
