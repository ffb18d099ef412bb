package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/envkit/attache/internal/config"
	"github.com/envkit/attache/internal/gitcfg"
	"github.com/envkit/attache/internal/logging"
)

var repoDir string

var repoCheckCmd = &cobra.Command{
	Use:   "repo-check",
	Short: "Validate and repair the repository's git configuration",
	Long: `repo-check runs four independent checks against the repository:
shared configuration inclusion, commit signing enforcement, author identity,
and key-based remote addressing. Every check runs and reports regardless of
earlier failures; the exit status is non-zero if any check failed.`,
	Args: cobra.NoArgs,
	RunE: runRepoCheck,
}

func init() {
	repoCheckCmd.Flags().StringVar(&repoDir, "repo", "", "repository directory (overrides config file)")
	rootCmd.AddCommand(repoCheckCmd)
}

func runRepoCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	v := newValidator(cfg, logger)
	res := v.Check(cmd.Context())
	if !res.OK() {
		return errors.New("repository configuration checks failed; see messages above")
	}

	logger.Infof("repository configuration checks passed")
	return nil
}

func newValidator(cfg *config.Root, logger *logging.Logger) *gitcfg.Validator {
	v := gitcfg.New(cfg.Repo, logger)
	if repoDir != "" {
		v.Repo = repoDir
	}
	v.SharedConfig = cfg.SharedConfig
	v.Remote = cfg.Remote
	v.ProbeHost = cfg.ProbeHost
	return v
}
