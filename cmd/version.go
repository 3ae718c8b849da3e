package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/samaio/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(meta.GetInfo())
	},
}
