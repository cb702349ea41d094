package gitops

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

func open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", dir, err)
	}
	return repo, nil
}

// HeadRevision returns the commit hash HEAD points at in the repository containing dir.
func HeadRevision(dir string) (string, error) {
	repo, err := open(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// IsDirty reports whether the worktree has uncommitted changes, untracked files included.
func IsDirty(dir string) (bool, error) {
	repo, err := open(dir)
	if err != nil {
		return false, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return !status.IsClean(), nil
}
