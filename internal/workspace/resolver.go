package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"rxbench/internal/results"
	"rxbench/internal/supervise"
)

// Target is one repository to analyze: a clone URL or a local directory.
type Target struct {
	// Source is what the user gave: a URL or a filesystem path.
	Source string
	// Name is the display name, also used as the crates.io crate name.
	Name string
	// URL is the canonical repository URL, empty for local targets without
	// one.
	URL string
	// Local is set when Source is an existing directory.
	Local bool
}

// ParseTarget classifies s. Existing directories are local targets;
// everything else is treated as a clone URL.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.New("empty target")
	}
	if fi, err := os.Stat(s); err == nil && fi.IsDir() {
		abs, err := filepath.Abs(s)
		if err != nil {
			return Target{}, fmt.Errorf("target %q: %w", s, err)
		}
		return Target{Source: abs, Name: filepath.Base(abs), Local: true}, nil
	}
	name := repoName(s)
	if name == "" || name == "." || name == "/" {
		return Target{}, fmt.Errorf("target %q: cannot derive a repository name", s)
	}
	return Target{Source: s, Name: name, URL: strings.TrimSuffix(s, ".git")}, nil
}

func repoName(s string) string {
	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.LastIndexByte(s, ':'); i >= 0 {
		// scp-like git@host:owner/repo.git
		p = s[i+1:]
	}
	return strings.TrimSuffix(path.Base(strings.TrimSuffix(p, "/")), ".git")
}

// Resolver turns targets into workspaces on disk.
type Resolver struct {
	// WorkDir holds clones and staged member copies.
	WorkDir string
	// Git is the git executable.
	Git string
	// Keep leaves clones on disk after Close.
	Keep   bool
	Runner Runner
	Logger *slog.Logger
}

// Workspace is a resolved repository: its root on disk and the ordered
// units to analyze, root first.
type Workspace struct {
	Target   Target
	Root     string
	Manifest *Manifest
	Units    []results.AnalysisUnit
	// Missing lists member entries that did not resolve to a directory.
	Missing []string

	workDir string
	owned   bool
	logger  *slog.Logger
}

// Resolve clones (or locates) t and lists its analysis units. A repository
// without a root manifest is an error.
func (r *Resolver) Resolve(ctx context.Context, t Target) (*Workspace, error) {
	log := r.logger().With("repo", t.Name)

	// git resolves the destination against its own Dir, so both must be
	// absolute or a relative work dir would be applied twice.
	workDir, err := filepath.Abs(r.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	ws := &Workspace{Target: t, workDir: workDir, logger: log}
	if t.Local {
		ws.Root = t.Source
	} else {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
		dest := filepath.Join(workDir, t.Name)
		if err := os.RemoveAll(dest); err != nil {
			return nil, fmt.Errorf("remove stale clone %s: %w", dest, err)
		}
		log.Info("cloning", "url", t.Source)
		git := r.Git
		if git == "" {
			git = "git"
		}
		c := supervise.Command{
			Path: git,
			Args: []string{"clone", "--recurse-submodules", "-j8", t.Source, dest},
			Dir:  workDir,
		}
		if _, err := run(ctx, r.Runner, c); err != nil {
			_ = os.RemoveAll(dest)
			return nil, fmt.Errorf("clone %s: %w", t.Source, err)
		}
		ws.Root = dest
		ws.owned = !r.Keep
	}

	m, err := ReadManifest(ws.Root)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.Manifest = m

	found, missing := ExpandMembers(ws.Root, m.Workspace.Members, m.Workspace.Exclude)
	for _, miss := range missing {
		log.Warn("workspace member not found, skipping", "member", miss)
	}
	ws.Missing = missing

	ws.Units = append(ws.Units, results.AnalysisUnit{Repository: t.Name, Root: ws.Root})
	for _, member := range found {
		ws.Units = append(ws.Units, results.AnalysisUnit{
			Repository:    t.Name,
			Member:        member,
			Root:          filepath.Join(ws.Root, filepath.FromSlash(member)),
			ResetManifest: true,
		})
	}
	log.Debug("resolved", "root", ws.Root, "members", found)
	return ws, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Stage prepares u for analysis. Root units run in place. Member units are
// copied to <workdir>/MEMBER-<base> so the tool sees them as standalone
// packages; release deletes the copy.
func (w *Workspace) Stage(u results.AnalysisUnit) (staged results.AnalysisUnit, release func(), err error) {
	if u.IsRoot() {
		return u, func() {}, nil
	}
	dir := w.workDir
	if dir == "" {
		dir = filepath.Dir(w.Root)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return u, func() {}, fmt.Errorf("stage %s: %w", u.Member, err)
	}
	dest := filepath.Join(dir, "MEMBER-"+filepath.Base(u.Root))
	if err := os.RemoveAll(dest); err != nil {
		return u, func() {}, fmt.Errorf("stage %s: %w", u.Member, err)
	}
	if err := os.CopyFS(dest, os.DirFS(u.Root)); err != nil {
		_ = os.RemoveAll(dest)
		return u, func() {}, fmt.Errorf("stage %s: %w", u.Member, err)
	}
	staged = u
	staged.Root = dest
	return staged, func() {
		if err := os.RemoveAll(dest); err != nil {
			w.logger.Warn("failed to remove staged member", "path", dest, "err", err)
		}
	}, nil
}

// Close removes the clone unless it was local or kept.
func (w *Workspace) Close() {
	if w == nil || !w.owned {
		return
	}
	w.owned = false
	if err := os.RemoveAll(w.Root); err != nil {
		w.logger.Warn("failed to remove workspace", "path", w.Root, "err", err)
	}
}
