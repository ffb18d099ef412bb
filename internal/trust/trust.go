// Package trust provisions the system-wide ssh trust store so outbound
// connections to code hosts succeed without host-key prompts. Key material
// is resolved from environment variables following the
// <NORMALIZED_DOMAIN>_SSH_HOST_KEY_<ALGORITHM> naming convention.
package trust

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/envkit/attache/internal/logging"
	"github.com/envkit/attache/internal/metrics"
	"github.com/envkit/attache/internal/run"
)

const defaultPort = 22

// Algorithm names a host key algorithm as it appears in the environment
// variable suffix.
type Algorithm string

const (
	AlgorithmECDSA Algorithm = "ECDSA"
	AlgorithmRSA   Algorithm = "RSA"
)

// preference orders algorithms for resolution; the first populated entry
// wins and the rest are ignored for that host.
var preference = []Algorithm{AlgorithmECDSA, AlgorithmRSA}

// HostSpec identifies one remote host to trust.
type HostSpec struct {
	Host string
	Port int
}

// ParseHostSpec parses `domain[:port]`, defaulting to github.com:22. A bare
// trailing default-port suffix is normalized away.
func ParseHostSpec(s string) (HostSpec, error) {
	if s == "" {
		return HostSpec{Host: "github.com", Port: defaultPort}, nil
	}
	if !strings.Contains(s, ":") {
		return HostSpec{Host: s, Port: defaultPort}, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return HostSpec{}, fmt.Errorf("host spec %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return HostSpec{}, fmt.Errorf("host spec %q: invalid port %q", s, portStr)
	}
	return HostSpec{Host: host, Port: port}, nil
}

// EnvPrefix derives the environment variable prefix: the hostname uppercased
// with periods removed. The port never participates.
func (h HostSpec) EnvPrefix() string {
	return strings.ReplaceAll(strings.ToUpper(h.Host), ".", "")
}

// Token is the host field of the trust store record: the bare hostname, or
// the bracketed `[host]:port` form when a non-default port was supplied.
func (h HostSpec) Token() string {
	if h.Port != defaultPort {
		return fmt.Sprintf("[%s]:%d", h.Host, h.Port)
	}
	return h.Host
}

// Provisioner installs host keys into the trust store and generates the
// connection shortcut include. Env defaults to os.LookupEnv; tests inject a
// map-backed lookup.
type Provisioner struct {
	StorePath  string
	IncludeDir string
	Env        func(string) (string, bool)
	Runner     run.Runner
	Log        *logging.Logger
}

func New(storePath, includeDir string, logger *logging.Logger) *Provisioner {
	return &Provisioner{
		StorePath:  storePath,
		IncludeDir: includeDir,
		Env:        os.LookupEnv,
		Runner:     run.ExecRunner{},
		Log:        logger.WithComponent("trust-host"),
	}
}

// HostKeys builds the algorithm to key-material mapping for spec from the
// environment. Empty values count as absent.
func (p *Provisioner) HostKeys(spec HostSpec) map[Algorithm]string {
	keys := make(map[Algorithm]string, len(preference))
	for _, alg := range preference {
		name := fmt.Sprintf("%s_SSH_HOST_KEY_%s", spec.EnvPrefix(), alg)
		if v, ok := p.Env(name); ok && v != "" {
			keys[alg] = v
		}
	}
	return keys
}

// resolve picks the key material for spec by algorithm preference.
func (p *Provisioner) resolve(spec HostSpec) (Algorithm, string, bool) {
	keys := p.HostKeys(spec)
	for _, alg := range preference {
		if v, ok := keys[alg]; ok {
			return alg, v, true
		}
	}
	return "", "", false
}

// Install appends the trust store record for spec and writes its connection
// shortcut. A host with no key material in the environment is a valid
// nothing-to-provision state and installs nothing.
func (p *Provisioner) Install(ctx context.Context, spec HostSpec) error {
	alg, key, ok := p.resolve(spec)
	if !ok {
		p.Log.Debugf("no host key material for %s; nothing to provision", spec.Host)
		return nil
	}

	record := spec.Token() + " " + key

	// Best-effort validation. The record is written either way: the store is
	// append-mostly and ssh may accept formats this parser does not.
	if _, _, _, _, _, err := ssh.ParseKnownHosts([]byte(record)); err != nil {
		p.Log.Warnf("host key for %s does not parse as a known-hosts record (%v); installing anyway", spec.Host, err)
	}

	if err := p.appendRecord(record); err != nil {
		return fmt.Errorf("trust store %s: %w", p.StorePath, err)
	}
	metrics.HostKeysInstalled.WithLabelValues(spec.Host, string(alg)).Inc()
	p.Log.Infof("installed %s host key for %s", alg, spec.Token())

	if err := p.writeShortcut(spec); err != nil {
		return fmt.Errorf("connection shortcut for %s: %w", spec.Host, err)
	}
	return nil
}

// appendRecord appends one line to the store, creating it with restrictive
// permissions. Records already present are not duplicated.
func (p *Provisioner) appendRecord(record string) error {
	existing, err := os.ReadFile(p.StorePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if slices.Contains(strings.Split(string(existing), "\n"), record) {
		return nil
	}

	f, err := os.OpenFile(p.StorePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(record + "\n")
	return err
}

// writeShortcut appends a Host block for the bare domain to the dedicated
// include file, pinning host verification against the trust store and
// disabling reverse-IP hostname checks. The file is created with restrictive
// permissions before any content is written.
func (p *Provisioner) writeShortcut(spec HostSpec) error {
	if err := os.MkdirAll(p.IncludeDir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(p.IncludeDir, "60-attache.conf")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), "Host "+spec.Host+"\n") {
		p.Log.Debugf("connection shortcut for %s already present", spec.Host)
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	block := fmt.Sprintf(`Host %s
    HostName %s
    Port %d
    StrictHostKeyChecking yes
    CheckHostIP no
    GlobalKnownHostsFile %s
`, spec.Host, spec.Host, spec.Port, p.StorePath)

	if _, err := f.WriteString(block); err != nil {
		return err
	}
	p.Log.Infof("connection shortcut for %s written to %s", spec.Host, path)
	return nil
}

// Finalize deduplicates and hashes the trust store, removes the backup file
// the hashing utility leaves behind, and locks the store read-only. Each
// step is allowed to fail independently: keys already installed are never
// rolled back, partial success beats an empty store.
func (p *Provisioner) Finalize(ctx context.Context) error {
	if _, err := os.Stat(p.StorePath); os.IsNotExist(err) {
		// Nothing was provisioned. Absence is a valid state, not a failure.
		p.Log.Debugf("trust store %s does not exist; nothing to finalize", p.StorePath)
		return nil
	}

	var errs []error

	if err := p.dedupe(); err != nil {
		p.Log.Warnf("deduplicating %s: %v", p.StorePath, err)
		errs = append(errs, err)
	}

	// Hashing must run after every Install: it rewrites hostnames into an
	// opaque form, and records appended afterwards would stay in plaintext.
	if out, err := p.Runner.Run(ctx, "", "ssh-keygen", "-H", "-f", p.StorePath); err != nil {
		p.Log.Warnf("ssh-keygen -H -f %s: %v %s", p.StorePath, err, strings.TrimSpace(out))
		errs = append(errs, err)
	}

	if err := os.Remove(p.StorePath + ".old"); err != nil && !os.IsNotExist(err) {
		p.Log.Warnf("removing hashing backup: %v", err)
		errs = append(errs, err)
	}

	if err := os.Chmod(p.StorePath, 0o444); err != nil {
		p.Log.Warnf("locking %s read-only: %v", p.StorePath, err)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		metrics.TrustFinalizeFailed.Inc()
	}
	return errors.Join(errs...)
}

// dedupe rewrites the store keeping the first occurrence of each record.
func (p *Provisioner) dedupe() error {
	bs, err := os.ReadFile(p.StorePath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	lines := strings.Split(string(bs), "\n")
	seen := make(map[string]bool, len(lines))
	out := lines[:0]
	for _, line := range lines {
		if line != "" && seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}

	deduped := strings.Join(out, "\n")
	if deduped == string(bs) {
		return nil
	}
	return os.WriteFile(p.StorePath, []byte(deduped), 0o600)
}
