package gen

import (
	"github.com/spf13/cobra"
)

// RootCmd groups the generators for files shipped alongside samaio.
var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for samaio",
	Long: `Generate documentation for samaio

Usage
	samaio gen man --dir man/

`,
	Args: cobra.NoArgs,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
