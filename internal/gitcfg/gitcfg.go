// Package gitcfg validates and repairs the local git configuration of a
// workspace repository: shared config inclusion, commit signing, author
// identity, and the transport used by the origin remote. Every check is
// idempotent and safe to run on each environment attach.
package gitcfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/envkit/attache/internal/logging"
	"github.com/envkit/attache/internal/metrics"
	"github.com/envkit/attache/internal/run"
)

// Validator checks one repository. The zero values of Remote and ProbeHost
// are not usable; construct with New.
type Validator struct {
	Repo         string
	SharedConfig string
	Remote       string
	ProbeHost    string
	Runner       run.Runner
	Log          *logging.Logger
}

func New(repo string, logger *logging.Logger) *Validator {
	return &Validator{
		Repo:         repo,
		SharedConfig: "../.gitconfig",
		Remote:       "origin",
		ProbeHost:    "github.com",
		Runner:       run.ExecRunner{},
		Log:          logger.WithComponent("repo-check"),
	}
}

// Result aggregates the four independent checks. A failed check never stops
// the remaining checks from running; the operator gets the full remediation
// list from a single invocation.
type Result struct {
	Include  bool
	Signing  bool
	Identity bool
	Origin   bool
}

func (r Result) OK() bool {
	return r.Include && r.Signing && r.Identity && r.Origin
}

// Check runs all four configuration checks and reports each outcome. It
// never mutates configuration that already has the desired value.
func (v *Validator) Check(ctx context.Context) Result {
	metrics.RepoCheckRuns.Inc()

	res := Result{
		Include:  v.checkInclude(ctx),
		Signing:  v.checkSigning(ctx),
		Identity: v.checkIdentity(ctx),
		Origin:   v.checkOrigin(ctx),
	}

	for name, ok := range map[string]bool{
		"include":  res.Include,
		"signing":  res.Signing,
		"identity": res.Identity,
		"origin":   res.Origin,
	} {
		if !ok {
			metrics.RepoCheckFailed.WithLabelValues(name).Inc()
		}
	}

	return res
}

// checkInclude points include.path at the shared configuration file if it
// exists. A missing shared file is a valid state, not an error.
func (v *Validator) checkInclude(ctx context.Context) bool {
	current, _ := v.configGet(ctx, true, "include.path")
	if current == v.SharedConfig {
		v.Log.Debugf("include.path already references %s", v.SharedConfig)
		return true
	}

	shared := v.SharedConfig
	if !filepath.IsAbs(shared) {
		// include.path is resolved relative to .git/config by git itself.
		shared = filepath.Join(v.Repo, ".git", shared)
	}
	if _, err := os.Stat(shared); err != nil {
		v.Log.Debugf("shared configuration %s not present; skipping include", shared)
		return true
	}

	if err := v.configSet(ctx, "include.path", v.SharedConfig); err != nil {
		v.Log.Errorf("failed to set include.path: %v", err)
		return false
	}
	v.Log.Infof("include.path now references %s", v.SharedConfig)
	return true
}

// checkSigning verifies commit signing is enforced. A missing signing key is
// only a warning: signing may be wired to an agent-provided key.
func (v *Validator) checkSigning(ctx context.Context) bool {
	ok := true
	if val, _ := v.configGet(ctx, false, "commit.gpgsign"); val != "true" {
		v.Log.Errorf("commit signing is not enforced; run: git config --local commit.gpgsign true")
		ok = false
	}
	if _, set := v.configGet(ctx, false, "user.signingkey"); !set {
		v.Log.Warnf("no signing key configured; run: git config --local user.signingkey <KEY_ID>")
	}
	return ok
}

// checkIdentity requires both author name and email, reporting each absence
// separately so the operator fixes exactly what is missing.
func (v *Validator) checkIdentity(ctx context.Context) bool {
	name, nameSet := v.configGet(ctx, false, "user.name")
	email, emailSet := v.configGet(ctx, false, "user.email")

	if !nameSet {
		v.Log.Errorf(`author name is not set; run: git config --local user.name "<NAME>"`)
	}
	if !emailSet {
		v.Log.Errorf("author email is not set; run: git config --local user.email <EMAIL>")
	}
	if !nameSet || !emailSet {
		return false
	}

	v.Log.Infof("commits will be attributed to %s <%s>", name, email)
	return true
}

// checkOrigin migrates the origin remote from token/HTTPS addressing to key
// based addressing. The rewrite is only committed after the remote
// is proven reachable; on probe failure the original URL is restored so the
// repository never points at an unreachable transport.
func (v *Validator) checkOrigin(ctx context.Context) bool {
	urlKey := fmt.Sprintf("remote.%s.url", v.Remote)
	original, set := v.configGet(ctx, true, urlKey)
	if !set {
		v.Log.Errorf("remote %q has no URL configured", v.Remote)
		return false
	}

	if keyBased(original) {
		v.Log.Debugf("remote %q already uses key-based addressing: %s", v.Remote, original)
		return true
	}

	token := v.ProbeHost + "/"
	idx := strings.Index(original, token)
	if idx < 0 {
		v.Log.Errorf("remote URL %s does not reference %s; cannot derive key-based URL", original, v.ProbeHost)
		return false
	}
	candidate := "git@" + v.ProbeHost + ":" + original[idx+len(token):]

	if result := ProbeAuth(ctx, v.Runner, v.ProbeHost); result != AuthAuthenticated {
		v.Log.Errorf("ssh authentication to %s failed (%s); keeping %s. Forward your ssh agent and re-attach.",
			v.ProbeHost, result, original)
		return false
	}

	if err := v.configSet(ctx, urlKey, candidate); err != nil {
		v.Log.Errorf("failed to rewrite remote %q: %v", v.Remote, err)
		return false
	}

	if out, err := v.git(ctx, "fetch", v.Remote); err != nil {
		if rbErr := v.configSet(ctx, urlKey, original); rbErr != nil {
			v.Log.Errorf("fetch over %s failed and restoring %s failed too: %v; repair the remote URL by hand", candidate, original, rbErr)
			return false
		}
		v.Log.Errorf("fetch over %s failed: %v; remote %q restored to %s", candidate, firstLine(out, err), v.Remote, original)
		return false
	}

	v.Log.Infof("remote %q now uses key-based addressing: %s", v.Remote, candidate)
	return true
}

// CheckStatus is the read-only view of one setting, rendered by the status
// command.
type CheckStatus struct {
	Name   string
	State  string
	Detail string
}

// Status inspects every setting the validator covers without mutating
// anything.
func (v *Validator) Status(ctx context.Context) []CheckStatus {
	statuses := make([]CheckStatus, 0, 6)

	add := func(local bool, key string) {
		val, set := v.configGet(ctx, local, key)
		state := "ok"
		if !set {
			state, val = "unset", ""
		}
		statuses = append(statuses, CheckStatus{Name: key, State: state, Detail: val})
	}

	add(true, "include.path")
	add(false, "commit.gpgsign")
	add(false, "user.signingkey")
	add(false, "user.name")
	add(false, "user.email")

	urlKey := fmt.Sprintf("remote.%s.url", v.Remote)
	if url, set := v.configGet(ctx, true, urlKey); set {
		kind := "token"
		if keyBased(url) {
			kind = "key-based"
		}
		statuses = append(statuses, CheckStatus{Name: urlKey, State: kind, Detail: url})
	} else {
		statuses = append(statuses, CheckStatus{Name: urlKey, State: "unset"})
	}

	return statuses
}

func keyBased(url string) bool {
	return strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")
}

// configGet reads a configuration key, locally scoped or merged across
// scopes. Unset keys are reported by git with a non-zero exit and empty
// output.
func (v *Validator) configGet(ctx context.Context, local bool, key string) (string, bool) {
	args := []string{"config"}
	if local {
		args = append(args, "--local")
	}
	args = append(args, key)

	out, err := v.Runner.Run(ctx, v.Repo, "git", args...)
	value := strings.TrimSpace(out)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

// configSet writes a local configuration key, skipping the write when the
// value already matches.
func (v *Validator) configSet(ctx context.Context, key, value string) error {
	if current, set := v.configGet(ctx, true, key); set && current == value {
		return nil
	}
	out, err := v.Runner.Run(ctx, v.Repo, "git", "config", "--local", key, value)
	if err != nil {
		return fmt.Errorf("git config --local %s: %v", key, firstLine(out, err))
	}
	return nil
}

func (v *Validator) git(ctx context.Context, args ...string) (string, error) {
	return v.Runner.Run(ctx, v.Repo, "git", args...)
}

// firstLine favors the command's own diagnostic over the generic exit error.
func firstLine(out string, err error) string {
	if line, _, _ := strings.Cut(strings.TrimSpace(out), "\n"); line != "" {
		return line
	}
	return err.Error()
}
