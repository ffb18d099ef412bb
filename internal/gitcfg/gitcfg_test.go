package gitcfg_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/envkit/attache/internal/gitcfg"
	"github.com/envkit/attache/internal/logging"
)

const authenticatedOutput = "Hi org/repo! You've successfully authenticated, but GitHub does not provide shell access."

// fakeGit emulates the git config store and the ssh probe. Reads of unset
// keys fail with a non-zero exit, matching git's behavior.
type fakeGit struct {
	cfg      map[string]string
	sshOut   string
	fetchErr error

	writes        int
	writesAllowed int // negative means unlimited
}

func newFakeGit(cfg map[string]string) *fakeGit {
	if cfg == nil {
		cfg = map[string]string{}
	}
	return &fakeGit{cfg: cfg, writesAllowed: -1}
}

func (f *fakeGit) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	if name == "ssh" {
		return f.sshOut, errors.New("exit status 1")
	}
	if name != "git" {
		return "", nil
	}

	switch args[0] {
	case "fetch":
		return "", f.fetchErr
	case "config":
		rest := args[1:]
		if len(rest) > 0 && rest[0] == "--local" {
			rest = rest[1:]
		}
		switch len(rest) {
		case 1:
			v, ok := f.cfg[rest[0]]
			if !ok {
				return "", errors.New("exit status 1")
			}
			return v + "\n", nil
		case 2:
			if f.writesAllowed == 0 {
				return "error: could not lock config file", errors.New("exit status 255")
			}
			if f.writesAllowed > 0 {
				f.writesAllowed--
			}
			f.writes++
			f.cfg[rest[0]] = rest[1]
			return "", nil
		}
	}
	return "", nil
}

func newValidator(t *testing.T, fake *fakeGit) (*gitcfg.Validator, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: logging.LogLevelDebug, Output: &buf, ErrOutput: &buf})

	v := gitcfg.New(t.TempDir(), logger)
	v.Runner = fake
	return v, &buf
}

func goodConfig() map[string]string {
	return map[string]string{
		"commit.gpgsign":    "true",
		"user.signingkey":   "2B90D010",
		"user.name":         "Ada",
		"user.email":        "ada@example.com",
		"remote.origin.url": "git@github.com:org/repo.git",
	}
}

func TestCheckAllPassing(t *testing.T) {
	fake := newFakeGit(goodConfig())
	v, _ := newValidator(t, fake)

	res := v.Check(t.Context())
	exp := gitcfg.Result{Include: true, Signing: true, Identity: true, Origin: true}
	if diff := cmp.Diff(exp, res); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
	if !res.OK() {
		t.Fatal("expected overall success")
	}
}

func TestCheckIdempotent(t *testing.T) {
	fake := newFakeGit(goodConfig())
	v, _ := newValidator(t, fake)

	first := v.Check(t.Context())
	second := v.Check(t.Context())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs diverged (-first +second):\n%s", diff)
	}
	if fake.writes != 0 {
		t.Fatalf("expected no configuration writes, got %d", fake.writes)
	}
}

func TestIdentityEmailMissing(t *testing.T) {
	cfg := goodConfig()
	delete(cfg, "user.email")
	cfg["user.name"] = "Ada"

	fake := newFakeGit(cfg)
	v, buf := newValidator(t, fake)

	res := v.Check(t.Context())
	if res.Identity {
		t.Fatal("expected identity check to fail")
	}
	if res.OK() {
		t.Fatal("expected overall failure")
	}
	if !strings.Contains(buf.String(), "git config --local user.email <EMAIL>") {
		t.Fatalf("missing email remediation command in output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "user.name") {
		t.Fatalf("name was set; no name remediation expected:\n%s", buf.String())
	}
}

func TestSigningUnset(t *testing.T) {
	cfg := goodConfig()
	delete(cfg, "commit.gpgsign")
	delete(cfg, "user.signingkey")

	fake := newFakeGit(cfg)
	v, buf := newValidator(t, fake)

	res := v.Check(t.Context())
	if res.Signing {
		t.Fatal("expected signing check to fail")
	}
	if !strings.Contains(buf.String(), "git config --local commit.gpgsign true") {
		t.Fatalf("missing signing remediation:\n%s", buf.String())
	}
	// The missing key is a warning, not a failure.
	if !strings.Contains(buf.String(), "git config --local user.signingkey <KEY_ID>") {
		t.Fatalf("missing signing key hint:\n%s", buf.String())
	}
}

func TestOriginRewriteSuccess(t *testing.T) {
	cfg := goodConfig()
	cfg["remote.origin.url"] = "https://github.com/org/repo.git"

	fake := newFakeGit(cfg)
	fake.sshOut = authenticatedOutput
	v, _ := newValidator(t, fake)

	res := v.Check(t.Context())
	if !res.Origin {
		t.Fatal("expected origin check to pass")
	}
	if got, want := fake.cfg["remote.origin.url"], "git@github.com:org/repo.git"; got != want {
		t.Fatalf("origin URL = %q, want %q", got, want)
	}
}

func TestOriginRewriteRollbackOnFetchFailure(t *testing.T) {
	const original = "https://github.com/org/repo.git"
	cfg := goodConfig()
	cfg["remote.origin.url"] = original

	fake := newFakeGit(cfg)
	fake.sshOut = authenticatedOutput
	fake.fetchErr = errors.New("exit status 128")
	v, buf := newValidator(t, fake)

	res := v.Check(t.Context())
	if res.Origin {
		t.Fatal("expected origin check to fail")
	}
	if got := fake.cfg["remote.origin.url"]; got != original {
		t.Fatalf("origin URL = %q, want rollback to %q", got, original)
	}
	if !strings.Contains(buf.String(), original) {
		t.Fatalf("expected restored URL in output:\n%s", buf.String())
	}
}

func TestOriginRewriteSkippedWithoutAuth(t *testing.T) {
	const original = "https://github.com/org/repo.git"
	cfg := goodConfig()
	cfg["remote.origin.url"] = original

	fake := newFakeGit(cfg)
	fake.sshOut = "git@github.com: Permission denied (publickey)."
	v, _ := newValidator(t, fake)

	res := v.Check(t.Context())
	if res.Origin {
		t.Fatal("expected origin check to fail")
	}
	if fake.writes != 0 {
		t.Fatalf("no writes expected when the auth probe fails, got %d", fake.writes)
	}
	if got := fake.cfg["remote.origin.url"]; got != original {
		t.Fatalf("origin URL = %q, want untouched %q", got, original)
	}
}

func TestOriginRollbackWriteFailureIsFatal(t *testing.T) {
	cfg := goodConfig()
	cfg["remote.origin.url"] = "https://github.com/org/repo.git"

	fake := newFakeGit(cfg)
	fake.sshOut = authenticatedOutput
	fake.fetchErr = errors.New("exit status 128")
	fake.writesAllowed = 1 // candidate write succeeds, rollback write fails
	v, buf := newValidator(t, fake)

	res := v.Check(t.Context())
	if res.Origin {
		t.Fatal("expected origin check to fail")
	}
	if !strings.Contains(buf.String(), "repair the remote URL by hand") {
		t.Fatalf("expected fatal rollback diagnostic:\n%s", buf.String())
	}
}

func TestIncludeWrittenWhenSharedConfigExists(t *testing.T) {
	cfg := goodConfig()
	fake := newFakeGit(cfg)
	v, _ := newValidator(t, fake)

	if err := os.Mkdir(filepath.Join(v.Repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(v.Repo, ".gitconfig"), []byte("[core]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := v.Check(t.Context())
	if !res.Include {
		t.Fatal("expected include check to pass")
	}
	if got, want := fake.cfg["include.path"], "../.gitconfig"; got != want {
		t.Fatalf("include.path = %q, want %q", got, want)
	}
}

func TestIncludeSkippedWhenSharedConfigAbsent(t *testing.T) {
	fake := newFakeGit(goodConfig())
	v, _ := newValidator(t, fake)

	res := v.Check(t.Context())
	if !res.Include {
		t.Fatal("a missing shared config file is not an error")
	}
	if _, ok := fake.cfg["include.path"]; ok {
		t.Fatal("include.path must not be written when the shared file is absent")
	}
}

func TestStatusReadsOnly(t *testing.T) {
	cfg := goodConfig()
	delete(cfg, "user.email")
	fake := newFakeGit(cfg)
	v, _ := newValidator(t, fake)

	statuses := v.Status(t.Context())
	if fake.writes != 0 {
		t.Fatalf("status must not write, got %d writes", fake.writes)
	}

	byName := map[string]gitcfg.CheckStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	if s := byName["user.email"]; s.State != "unset" {
		t.Fatalf("user.email state = %q, want unset", s.State)
	}
	if s := byName["remote.origin.url"]; s.State != "key-based" {
		t.Fatalf("remote.origin.url state = %q, want key-based", s.State)
	}
}
