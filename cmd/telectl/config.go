package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/telectl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write config templates and show effective configs.",
}

var configInitCmd = &cobra.Command{
	Use:   "init KIND PATH",
	Short: "Write a board or ground config template.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteTemplate(args[1], args[0], force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show PATH",
	Short: "Validate a config and print it with defaults filled in.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		out, err := config.Render(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}
