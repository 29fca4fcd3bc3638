//go:build linux

package main

import (
	"github.com/spf13/cobra"

	"github.com/packlab/bootstub"
)

// The loader owns no flags: every argument belongs to the packaged
// application and passes through verbatim.
var rootCmd = &cobra.Command{
	Use:                "bootstub [application arguments...]",
	Short:              "Run the application bundled inside this executable",
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := bootstub.Run(logger, bootstub.Options{}, args)
		if err != nil {
			return err
		}
		outcome.Exit()
		return nil
	},
}
