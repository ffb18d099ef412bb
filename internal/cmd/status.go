package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the repository configuration state without changing it",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&repoDir, "repo", "", "repository directory (overrides config file)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	v := newValidator(cfg, logger)

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Setting", "State", "Value")
	for _, s := range v.Status(cmd.Context()) {
		if err := table.Append(s.Name, s.State, s.Detail); err != nil {
			return err
		}
	}
	return table.Render()
}
