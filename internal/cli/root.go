package cli

import "github.com/spf13/cobra"

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crownsafe",
		Short: "Recall aggregation and safety-check plan runner",
	}

	cmd.Flags().String("config", "config.yaml", "Path to config file")
	return cmd
}
