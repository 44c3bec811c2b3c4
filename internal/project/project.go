// Package project derives the project and session identity that scopes every
// stored memory.
package project

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Session override variables, checked in order.
var sessionEnvVars = []string{"CLAUDE_MEMORY_SESSION_ID", "CLAUDE_SESSION_ID"}

// Env is the caller state a Context is resolved from. It is passed in
// explicitly so the resolver never reads the process working directory.
type Env struct {
	WorkDir   string
	SessionID string
}

// EnvFromProcess captures the current process working directory and session
// override. Only the transport edge should call this.
func EnvFromProcess() Env {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	var session string
	for _, key := range sessionEnvVars {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			session = v
			break
		}
	}
	return Env{WorkDir: wd, SessionID: session}
}

// Context identifies the project and session a memory was written from.
type Context struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	ProjectPath string `json:"project_path"`
	GitRepo     string `json:"git_repo,omitempty"`
	GitBranch   string `json:"git_branch,omitempty"`
	SessionID   string `json:"session_id"`
}

// GitRunner runs a git subcommand in dir and returns trimmed stdout.
type GitRunner interface {
	Git(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit shells out to the git binary.
type ExecGit struct {
	Timeout time.Duration
}

func (g ExecGit) Git(ctx context.Context, dir string, args ...string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Resolver turns an Env into a Context. It holds the per-process session id
// and is safe for concurrent use.
type Resolver struct {
	git    GitRunner
	logger *slog.Logger
	now    func() time.Time

	sessionOnce sync.Once
	session     string
}

// NewResolver creates a resolver. A nil git runner disables git inspection.
func NewResolver(git GitRunner, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{git: git, logger: logger, now: time.Now}
}

// Resolve derives the project context for env. It never fails; every field
// that cannot be determined is left empty.
func (r *Resolver) Resolve(ctx context.Context, env Env) Context {
	path := absPath(env.WorkDir)
	pc := Context{
		ProjectPath: path,
		ProjectName: filepath.Base(path),
		ProjectID:   ProjectID(path),
	}

	if root, ok := FindRepoRoot(path); ok && r.git != nil {
		if remote, err := r.git.Git(ctx, root, "config", "--get", "remote.origin.url"); err == nil && remote != "" {
			pc.GitRepo = NormalizeRemote(remote)
		} else if err != nil {
			r.logger.Debug("git remote unavailable", "root", root, "error", err)
		}
		if branch, err := r.git.Git(ctx, root, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "" && branch != "HEAD" {
			pc.GitBranch = branch
		} else if err != nil {
			r.logger.Debug("git branch unavailable", "root", root, "error", err)
		}
	}

	pc.SessionID = strings.TrimSpace(env.SessionID)
	if pc.SessionID == "" {
		pc.SessionID = r.processSession()
	}
	return pc
}

func (r *Resolver) processSession() string {
	r.sessionOnce.Do(func() {
		r.session = NewSessionID(r.now())
	})
	return r.session
}

// ProjectID is a stable short hash of an absolute project path.
func ProjectID(path string) string {
	h := sha256.Sum256([]byte(path))
	return hex.EncodeToString(h[:8])
}

// NewSessionID returns "<UTC timestamp>_<8 hex chars>".
func NewSessionID(t time.Time) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return t.UTC().Format("20060102T150405Z") + "_" + hex.EncodeToString(b[:])
}

// FindRepoRoot walks upward from dir to the first directory holding a .git
// entry. A .git file counts, which covers worktrees and submodules.
func FindRepoRoot(dir string) (string, bool) {
	dir = absPath(dir)
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func absPath(dir string) string {
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}
