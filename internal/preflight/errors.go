package preflight

import (
	"errors"
	"fmt"
)

// CheckName identifies one preflight check.
type CheckName string

// Preflight checks in evaluation order.
const (
	CheckRepositoryRoot    CheckName = "repository_root"
	CheckBoundaryCommits   CheckName = "boundary_commits"
	CheckBoundaryAncestry  CheckName = "boundary_ancestry"
	CheckAttachedHead      CheckName = "attached_head"
	CheckCleanWorktree     CheckName = "clean_worktree"
	CheckRebasedOntoPrior  CheckName = "rebased_onto_prior"
	CheckTargetNotAdvanced CheckName = "target_not_advanced"
	CheckDestinationBranch CheckName = "destination_branch_absent"
	CheckLinearHistory     CheckName = "linear_history"
)

const (
	preflightErrorTemplateConstant    = "preflight check %s failed: %v"
	notRepositoryRootMessageConstant  = "reformat-branch must be run from the repo root"
	invalidBoundaryMessageConstant    = "not a valid commit in this repo"
	notAncestorMessageConstant        = "is not a valid ancestor of"
	detachedHeadMessageConstant       = "you must not run reformat-branch in a detached HEAD state"
	dirtyWorktreeMessageConstant      = "your working tree has pending changes. You must have a clean working tree before proceeding"
	notRebasedMessageConstant         = "branch is not based on the commit prior to reformat"
	alreadyAdvancedMessageConstant    = "this branch appears to already have advanced too far through the merge process"
	destinationExistsMessageConstant  = "destination branch already exists"
	mergeCommitInRangeMessageConstant = "branch history is not linear"
	repositoryMissingMessageConstant  = "preflight repository not configured"
	invalidRequestMessageConstant     = "invalid preflight request"
)

var (
	// ErrNotRepositoryRoot indicates the command was started outside the repository root.
	ErrNotRepositoryRoot = errors.New(notRepositoryRootMessageConstant)
	// ErrInvalidBoundary indicates a boundary reference that does not name a commit.
	ErrInvalidBoundary = errors.New(invalidBoundaryMessageConstant)
	// ErrNotAncestor indicates the prior boundary is not an ancestor of the after boundary.
	ErrNotAncestor = errors.New(notAncestorMessageConstant)
	// ErrDetachedHead indicates HEAD is not on a branch.
	ErrDetachedHead = errors.New(detachedHeadMessageConstant)
	// ErrDirtyWorktree indicates pending working tree changes.
	ErrDirtyWorktree = errors.New(dirtyWorktreeMessageConstant)
	// ErrNotRebased indicates the branch diverges from the prior boundary.
	ErrNotRebased = errors.New(notRebasedMessageConstant)
	// ErrAlreadyAdvanced indicates the target branch no longer meets the branch at the prior boundary.
	ErrAlreadyAdvanced = errors.New(alreadyAdvancedMessageConstant)
	// ErrDestinationExists indicates the destination branch is already present.
	ErrDestinationExists = errors.New(destinationExistsMessageConstant)
	// ErrMergeCommitInRange indicates merge commits between the prior boundary and HEAD.
	ErrMergeCommitInRange = errors.New(mergeCommitInRangeMessageConstant)
	// ErrRepositoryNotConfigured indicates a Validator without repository access.
	ErrRepositoryNotConfigured = errors.New(repositoryMissingMessageConstant)
	// ErrInvalidRequest indicates missing request fields.
	ErrInvalidRequest = errors.New(invalidRequestMessageConstant)
)

// PreflightError reports the first failed check.
type PreflightError struct {
	Check CheckName
	Cause error
}

// Error describes the failed check.
func (preflightError PreflightError) Error() string {
	return fmt.Sprintf(preflightErrorTemplateConstant, preflightError.Check, preflightError.Cause)
}

// Unwrap exposes the cause.
func (preflightError PreflightError) Unwrap() error {
	return preflightError.Cause
}
