package reformat

import (
	"errors"
	"fmt"

	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

const (
	replayErrorTemplateConstant             = "replay of %s failed during %s: %v"
	replayErrorWithProgressTemplateConstant = "replay of %s failed during %s (last replayed %s as %s): %v"
	repositoryMissingMessageConstant        = "reformat repository not configured"
	formatterMissingMessageConstant         = "reformat formatter not configured"
	branchSubjectConstant                   = "branch"
)

var (
	// ErrRepositoryNotConfigured indicates an engine without repository access.
	ErrRepositoryNotConfigured = errors.New(repositoryMissingMessageConstant)
	// ErrFormatterNotConfigured indicates an engine without a formatter.
	ErrFormatterNotConfigured = errors.New(formatterMissingMessageConstant)
)

// ReplayStage names the step of a commit replay.
type ReplayStage string

// Replay stages in execution order.
const (
	StageCheckoutSource  ReplayStage = "checkout_source"
	StageListSourceFiles ReplayStage = "list_source_files"
	StageFormat          ReplayStage = "format"
	StageAmend           ReplayStage = "amend"
	StageResolveAmended  ReplayStage = "resolve_amended"
	StageCheckoutTarget  ReplayStage = "checkout_target"
	StageListReplayFiles ReplayStage = "list_replay_files"
	StageApplyChange     ReplayStage = "apply_change"
	StageCommit          ReplayStage = "commit"
	StageResolveTarget   ReplayStage = "resolve_target"
	StageCreateBranch    ReplayStage = "create_branch"
)

// ReplayError reports a fatal failure during the walk together with the progress made before it.
// WorkingTreeCommit is the commit the working tree was left on.
type ReplayError struct {
	Stage              ReplayStage
	SourceCommit       gitrepo.CommitRef
	LastReplayedSource gitrepo.CommitRef
	LastReplayedTarget gitrepo.CommitRef
	WorkingTreeCommit  gitrepo.CommitRef
	Cause              error
}

// Error describes the failed stage.
func (replayError ReplayError) Error() string {
	subject := replayError.SourceCommit.Short()
	if len(subject) == 0 {
		subject = branchSubjectConstant
	}
	if len(replayError.LastReplayedSource) == 0 {
		return fmt.Sprintf(replayErrorTemplateConstant, subject, replayError.Stage, replayError.Cause)
	}
	return fmt.Sprintf(replayErrorWithProgressTemplateConstant,
		subject, replayError.Stage,
		replayError.LastReplayedSource.Short(), replayError.LastReplayedTarget.Short(),
		replayError.Cause)
}

// Unwrap exposes the underlying failure.
func (replayError ReplayError) Unwrap() error {
	return replayError.Cause
}
