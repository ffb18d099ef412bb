package gitcfg

import (
	"context"
	"strings"

	"github.com/envkit/attache/internal/run"
)

// AuthResult classifies the outcome of an ssh authentication probe.
type AuthResult int

const (
	AuthUnknown AuthResult = iota
	AuthAuthenticated
	AuthUnreachable
)

func (r AuthResult) String() string {
	switch r {
	case AuthAuthenticated:
		return "authenticated"
	case AuthUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ParseAuthOutput classifies the diagnostic output of `ssh -T git@<host>`.
// Code hosts close the session after authenticating, so the command exits
// non-zero even on success; only the output text is meaningful.
func ParseAuthOutput(out string) AuthResult {
	switch {
	case strings.Contains(out, "successfully authenticated"):
		return AuthAuthenticated
	case strings.Contains(out, "Connection refused"),
		strings.Contains(out, "Connection timed out"),
		strings.Contains(out, "Could not resolve hostname"),
		strings.Contains(out, "Network is unreachable"):
		return AuthUnreachable
	default:
		return AuthUnknown
	}
}

// ProbeAuth attempts an ssh authentication handshake against host and
// classifies the result. The ssh exit code is deliberately ignored.
func ProbeAuth(ctx context.Context, runner run.Runner, host string) AuthResult {
	out, _ := runner.Run(ctx, "", "ssh", "-T", "-o", "BatchMode=yes", "git@"+host)
	return ParseAuthOutput(out)
}
