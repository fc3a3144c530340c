// Package repoinspect reports the current branch and commit of the host
// working copy, using go-git for host-side repository operations instead
// of shelling out to the git binary.
package repoinspect

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Inspect opens the repository at path and reports its current branch and
// commit. Failure to resolve either is fatal.
func Inspect(path string) (*specmodel.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	branch, err := currentBranch(head)
	if err != nil {
		return nil, err
	}

	return &specmodel.Repository{
		Path:   path,
		Branch: branch,
		Commit: head.Hash().String(),
	}, nil
}

func currentBranch(head *plumbing.Reference) (string, error) {
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s, not on a branch", head.Hash())
	}
	return head.Name().Short(), nil
}
