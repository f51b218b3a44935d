package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/runner/logging"
)

// CheckoutInfo describes a source tree checkout to be performed for a job.
type CheckoutInfo struct {
	// RepoDir is the path of the local git repository to check out from.
	RepoDir string
	// Ref is the fully qualified git ref the build was triggered for,
	// e.g. "refs/heads/main".
	Ref string
	// CommitSHA is the commit to check out, or empty to use the head of Ref.
	CommitSHA string
	// CheckoutDir is the directory the working tree will be created in.
	CheckoutDir string
}

// GitCheckoutManager checks out a job's source tree into its workspace.
type GitCheckoutManager struct {
	log logger.Log
}

func NewGitCheckoutManager(factory logger.LogFactory) *GitCheckoutManager {
	return &GitCheckoutManager{
		log: factory("GitCheckoutManager"),
	}
}

// Checkout clones the repo into the checkout directory and positions the
// working tree at the requested commit.
func (s *GitCheckoutManager) Checkout(ctx context.Context, checkout CheckoutInfo, log *logging.StructuredLogger) error {
	start := time.Now()
	checkoutLog := log.Wrap("git_checkout", "Setting up workspace...")

	checkoutLog.WriteLine("Checking out repo to workspace...")
	cloneOpts := &git.CloneOptions{
		URL:        checkout.RepoDir,
		RemoteName: "origin",
		Tags:       git.AllTags,
	}
	if checkout.Ref != "" {
		cloneOpts.ReferenceName = plumbing.ReferenceName(checkout.Ref)
		cloneOpts.SingleBranch = true
	}
	repo, err := git.PlainCloneContext(ctx, checkout.CheckoutDir, false, cloneOpts)
	if err != nil {
		return fmt.Errorf("error cloning repo: %w", err)
	}

	if checkout.CommitSHA != "" {
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("error getting worktree: %w", err)
		}
		err = worktree.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(checkout.CommitSHA)})
		if err != nil {
			return fmt.Errorf("error checking out commit %q: %w", checkout.CommitSHA, err)
		}
	}

	checkoutLog.WriteLinef("Workspace setup completed in: %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// ResolveRepoHead returns the fully qualified ref name and commit SHA of the
// repo's current HEAD. A detached HEAD yields an empty ref name.
func ResolveRepoHead(repoDir string) (ref string, commitSHA string, err error) {
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", fmt.Errorf("error opening repo %q: %w", repoDir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("error resolving repo HEAD: %w", err)
	}
	if head.Name() != plumbing.HEAD {
		ref = head.Name().String()
	}
	return ref, head.Hash().String(), nil
}
