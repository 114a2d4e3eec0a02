package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env:GITHUB_TOKEN"
	AuthTokenSourceGHEnv    AuthTokenSource = "env:GH_TOKEN"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

// ghTimeout bounds `gh auth token` when the caller has no deadline.
const ghTimeout = 5 * time.Second

// ResolveAuthToken resolves an optional GitHub access token. Star lookups
// work unauthenticated, so an empty token with a nil error is a valid result.
//
// Precedence:
//  1. provided (if non-empty)
//  2. GITHUB_TOKEN, then GH_TOKEN
//  3. GitHub CLI: `gh auth token -h github.com`
//
// It never prints the token.
func ResolveAuthToken(ctx context.Context, provided string) (token string, source AuthTokenSource, err error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}

	for _, env := range []struct {
		name   string
		source AuthTokenSource
	}{
		{"GITHUB_TOKEN", AuthTokenSourceEnv},
		{"GH_TOKEN", AuthTokenSourceGHEnv},
	} {
		if tok := strings.TrimSpace(os.Getenv(env.name)); tok != "" {
			return tok, env.source, nil
		}
	}

	tok, err := tokenFromGitHubCLI(ctx)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, AuthTokenSourceGitHubCL, nil
}

// tokenFromGitHubCLI asks gh for its stored token. A missing or logged-out
// gh yields "" with no error; only cancellation and garbage output are
// errors.
func tokenFromGitHubCLI(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "gh", "auth", "token", "-h", "github.com")
	cmd.Env = append(slices.DeleteFunc(os.Environ(), func(e string) bool {
		return strings.HasPrefix(e, "GH_PAGER=")
	}), "GH_PAGER=cat")

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// gh present but not logged in. Its stderr is not surfaced.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}
