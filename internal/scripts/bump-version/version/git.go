package version

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Git runs version control steps with the git binary inside one work tree
type Git struct {
	dir string
}

// NewGit returns a Git rooted at dir. An empty dir means the current
// working directory.
func NewGit(dir string) *Git {
	return &Git{dir: dir}
}

// Dirty reports whether tracked files have uncommitted changes
func (g *Git) Dirty() (bool, error) {
	out, err := g.run("status", "--porcelain", "--untracked-files=no")

	if err != nil {
		return false, err
	}

	return out != "", nil
}

// TagExists reports whether tag is already defined
func (g *Git) TagExists(tag string) (bool, error) {
	out, err := g.run("tag", "--list", tag)

	if err != nil {
		return false, err
	}

	return out == tag, nil
}

// Add stages path
func (g *Git) Add(path string) error {
	_, err := g.run("add", path)
	return err
}

// Commit records staged changes
func (g *Git) Commit(message string) error {
	_, err := g.run("commit", "-m", message)
	return err
}

// Tag creates an annotated tag on HEAD
func (g *Git) Tag(version string) error {
	_, err := g.run("tag", "-a", "-m", "Release "+version, version)
	return err
}

func (g *Git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}

	return strings.TrimSpace(out.String()), nil
}
