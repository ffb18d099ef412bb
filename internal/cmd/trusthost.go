package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/envkit/attache/internal/trust"
)

var trustHostCmd = &cobra.Command{
	Use:   "trust-host [host[:port]...]",
	Short: "Provision the ssh trust store for one or more hosts",
	Long: `trust-host resolves host keys from the environment (following the
<NORMALIZED_DOMAIN>_SSH_HOST_KEY_<ALGORITHM> convention, preferring ECDSA
over RSA), appends them to the system-wide trust store, writes a connection
shortcut for each host, and finally hashes and locks the store. Hosts with
no key material in the environment are skipped silently.

Without arguments the hosts from the configuration file are provisioned.`,
	RunE: runTrustHost,
}

func init() {
	rootCmd.AddCommand(trustHostCmd)
}

func runTrustHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	hosts := args
	if len(hosts) == 0 {
		hosts = cfg.Trust.Hosts
	}

	p := trust.New(cfg.Trust.Store, cfg.Trust.IncludeDir, logger)

	var errs []error
	for _, h := range hosts {
		spec, err := trust.ParseHostSpec(h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.Install(cmd.Context(), spec); err != nil {
			errs = append(errs, err)
		}
	}

	// Installs run before the single finalization pass: hashing rewrites
	// hostnames, so late appends would stay in plaintext.
	if err := p.Finalize(cmd.Context()); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
