package reformat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
	"github.com/tyemirov/branchfmt/internal/preflight"
)

const (
	headReferenceConstant               = "HEAD"
	commitFieldNameConstant             = "commit"
	targetFieldNameConstant             = "target"
	positionFieldNameConstant           = "position"
	totalFieldNameConstant              = "total"
	pathFieldNameConstant               = "path"
	branchFieldNameConstant             = "branch"
	formattedCountFieldNameConstant     = "formatted_files"
	skippedCountFieldNameConstant       = "skipped_files"
	amendedCountFieldNameConstant       = "amended_commits"
	walkStartedMessageConstant          = "Reformatting branch commits"
	commitStartedMessageConstant        = "Reformatting commit"
	deletedFileMessageConstant          = "File deleted in commit"
	formattedFileMessageConstant        = "Formatted file"
	unchangedFileMessageConstant        = "File already formatted"
	formatterFailedMessageConstant      = "Formatter failed; skipping file"
	ineligibleFileMessageConstant       = "File not subject to reformatting"
	noReformattingMessageConstant       = "Commit needed no reformatting"
	amendedCommitMessageConstant        = "Amended commit with formatting changes"
	replayedCommitMessageConstant       = "Replayed commit onto target"
	branchCreatedMessageConstant        = "Created reformatted branch"
	plannedCommitMessageConstant        = "Planned commit"
	replayFailedMessageConstant         = "Replay failed"
	stageFieldNameConstant              = "stage"
	eligibleCountFieldNameConstant      = "eligible_files"
	deletedCountFieldNameConstant       = "deleted_files"
	lastReplayedSourceFieldNameConstant = "last_replayed_source"
	lastReplayedTargetFieldNameConstant = "last_replayed_target"
	destinationBranchFieldNameConstant  = "destination_branch"
	ruleFieldNameConstant               = "rule"
	workingTreeCommitFieldNameConstant  = "working_tree_commit"
)

// Repository exposes the repository operations the engine performs on the single working tree.
type Repository interface {
	Resolve(executionContext context.Context, reference string) (gitrepo.CommitRef, error)
	IsWorkingTreeDirty(executionContext context.Context) (bool, error)
	Checkout(executionContext context.Context, commit gitrepo.CommitRef) error
	ChangedFiles(executionContext context.Context, commit gitrepo.CommitRef) ([]gitrepo.FileChange, error)
	PathExists(filePath string) (bool, error)
	ReadFileAtCommit(executionContext context.Context, commit gitrepo.CommitRef, filePath string) (gitrepo.RecordedFile, error)
	WriteWorktreeFile(filePath string, recorded gitrepo.RecordedFile) error
	RemoveFile(executionContext context.Context, filePath string) error
	AddFile(executionContext context.Context, filePath string) error
	AmendCommit(executionContext context.Context) error
	CommitWithMessageFrom(executionContext context.Context, source gitrepo.CommitRef) error
	CreateBranch(executionContext context.Context, branchName string) error
}

// Formatter rewrites eligible working tree files in place. RuleFor names the rule claiming a path.
type Formatter interface {
	RuleFor(filePath string) (string, bool)
	FormatInPlace(executionContext context.Context, filePath string) (bool, error)
}

// Engine replays branch commits onto the reformatted history.
type Engine struct {
	repository Repository
	formatter  Formatter
	logger     *zap.Logger
}

// NewEngine constructs an Engine. A nil logger is replaced with a no-op logger.
func NewEngine(repository Repository, fileFormatter Formatter, logger *zap.Logger) (*Engine, error) {
	if repository == nil {
		return nil, ErrRepositoryNotConfigured
	}
	if fileFormatter == nil {
		return nil, ErrFormatterNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{repository: repository, formatter: fileFormatter, logger: logger}, nil
}

type replayStep func(executionContext context.Context, targetTip gitrepo.CommitRef, source gitrepo.CommitRef) (gitrepo.CommitRef, error)

// foldCommits threads the target tip through every commit, oldest first.
func foldCommits(executionContext context.Context, commits []gitrepo.CommitRef, initialTip gitrepo.CommitRef, step replayStep) (gitrepo.CommitRef, error) {
	targetTip := initialTip
	for _, commit := range commits {
		nextTip, stepError := step(executionContext, targetTip, commit)
		if stepError != nil {
			return targetTip, stepError
		}
		targetTip = nextTip
	}
	return targetTip, nil
}

// Run migrates every commit of the plan and names the destination branch once the walk succeeds.
func (engine *Engine) Run(executionContext context.Context, plan preflight.Plan) (MigrationResult, error) {
	cursor := newCursor()
	outcomes := make([]CommitOutcome, 0, len(plan.Commits))

	engine.logger.Info(walkStartedMessageConstant,
		zap.Int(totalFieldNameConstant, len(plan.Commits)),
		zap.String(targetFieldNameConstant, plan.AfterBoundary.Short()),
		zap.String(destinationBranchFieldNameConstant, plan.DestinationBranch),
	)

	step := func(stepContext context.Context, targetTip gitrepo.CommitRef, source gitrepo.CommitRef) (gitrepo.CommitRef, error) {
		engine.logger.Info(commitStartedMessageConstant,
			zap.String(commitFieldNameConstant, source.Short()),
			zap.Int(positionFieldNameConstant, len(outcomes)+1),
			zap.Int(totalFieldNameConstant, len(plan.Commits)),
		)
		outcome, nextTip, replayError := engine.replayCommit(stepContext, cursor, targetTip, source)
		if replayError != nil {
			return targetTip, replayError
		}
		outcomes = append(outcomes, outcome)
		return nextTip, nil
	}

	finalTip, foldError := foldCommits(executionContext, plan.Commits, plan.AfterBoundary, step)
	if foldError != nil {
		engine.logFailure(foldError)
		return MigrationResult{}, foldError
	}

	if branchError := engine.createBranch(executionContext, cursor, finalTip, plan.DestinationBranch); branchError != nil {
		engine.logFailure(branchError)
		return MigrationResult{}, branchError
	}

	result := MigrationResult{
		DestinationBranch: plan.DestinationBranch,
		FinalTip:          finalTip,
		Commits:           outcomes,
	}
	engine.logger.Info(branchCreatedMessageConstant,
		zap.String(branchFieldNameConstant, plan.DestinationBranch),
		zap.String(commitFieldNameConstant, finalTip.Short()),
		zap.Int(amendedCountFieldNameConstant, result.AmendedCount()),
	)
	return result, nil
}

// DryRun lists the eligible and deleted files of every planned commit without touching the repository.
func (engine *Engine) DryRun(executionContext context.Context, plan preflight.Plan) (DryRunReport, error) {
	report := DryRunReport{
		DestinationBranch: plan.DestinationBranch,
		AfterBoundary:     plan.AfterBoundary,
		Commits:           make([]PlannedCommit, 0, len(plan.Commits)),
	}

	for _, commit := range plan.Commits {
		changes, changesError := engine.repository.ChangedFiles(executionContext, commit)
		if changesError != nil {
			return DryRunReport{}, ReplayError{Stage: StageListSourceFiles, SourceCommit: commit, Cause: changesError}
		}

		planned := PlannedCommit{Commit: commit}
		for _, change := range changes {
			if change.IsDeleted() {
				planned.DeletedFiles = append(planned.DeletedFiles, change.Path)
				continue
			}
			if _, eligible := engine.formatter.RuleFor(change.Path); eligible {
				planned.EligibleFiles = append(planned.EligibleFiles, change.Path)
			}
		}

		engine.logger.Info(plannedCommitMessageConstant,
			zap.String(commitFieldNameConstant, commit.Short()),
			zap.Int(eligibleCountFieldNameConstant, len(planned.EligibleFiles)),
			zap.Int(deletedCountFieldNameConstant, len(planned.DeletedFiles)),
		)
		report.Commits = append(report.Commits, planned)
	}
	return report, nil
}

func (engine *Engine) replayCommit(executionContext context.Context, cursor *Cursor, targetTip gitrepo.CommitRef, source gitrepo.CommitRef) (CommitOutcome, gitrepo.CommitRef, error) {
	outcome := CommitOutcome{SourceCommit: source}

	if contextError := executionContext.Err(); contextError != nil {
		return outcome, "", engine.failure(cursor, StageCheckoutSource, source, contextError)
	}
	if checkoutError := engine.repository.Checkout(executionContext, source); checkoutError != nil {
		return outcome, "", engine.failure(cursor, StageCheckoutSource, source, checkoutError)
	}
	cursor.moveTo(CursorWalking, source)

	deletedInCommit, formatError := engine.formatCommit(executionContext, cursor, source, &outcome)
	if formatError != nil {
		return outcome, "", formatError
	}

	amendedCommit, amendError := engine.amendIfChanged(executionContext, cursor, source, &outcome)
	if amendError != nil {
		return outcome, "", amendError
	}
	outcome.AmendedCommit = amendedCommit

	if checkoutError := engine.repository.Checkout(executionContext, targetTip); checkoutError != nil {
		return outcome, "", engine.failure(cursor, StageCheckoutTarget, source, checkoutError)
	}
	cursor.moveTo(CursorReplaying, targetTip)

	if applyError := engine.applyChanges(executionContext, cursor, targetTip, source, amendedCommit, deletedInCommit); applyError != nil {
		return outcome, "", applyError
	}

	if positionError := cursor.requirePosition(CursorReplaying, targetTip); positionError != nil {
		return outcome, "", engine.failure(cursor, StageCommit, source, positionError)
	}
	if commitError := engine.repository.CommitWithMessageFrom(executionContext, amendedCommit); commitError != nil {
		return outcome, "", engine.failure(cursor, StageCommit, source, commitError)
	}

	nextTip, resolveError := engine.repository.Resolve(executionContext, headReferenceConstant)
	if resolveError != nil {
		return outcome, "", engine.failure(cursor, StageResolveTarget, source, resolveError)
	}
	cursor.advanced(source, nextTip)
	outcome.ReplayedCommit = nextTip

	engine.logger.Info(replayedCommitMessageConstant,
		zap.String(commitFieldNameConstant, source.Short()),
		zap.String(targetFieldNameConstant, nextTip.Short()),
		zap.Int(formattedCountFieldNameConstant, len(outcome.FormattedFiles)),
		zap.Int(skippedCountFieldNameConstant, len(outcome.SkippedFiles)),
	)
	return outcome, nextTip, nil
}

// formatCommit formats the eligible files of the checked out source commit and returns the paths it deleted.
func (engine *Engine) formatCommit(executionContext context.Context, cursor *Cursor, source gitrepo.CommitRef, outcome *CommitOutcome) (map[string]struct{}, error) {
	changes, changesError := engine.repository.ChangedFiles(executionContext, source)
	if changesError != nil {
		return nil, engine.failure(cursor, StageListSourceFiles, source, changesError)
	}

	deletedInCommit := make(map[string]struct{})
	for _, change := range changes {
		if positionError := cursor.requirePosition(CursorWalking, source); positionError != nil {
			return nil, engine.failure(cursor, StageFormat, source, positionError)
		}

		if change.IsDeleted() {
			exists, existsError := engine.repository.PathExists(change.Path)
			if existsError != nil {
				return nil, engine.failure(cursor, StageFormat, source, existsError)
			}
			if !exists {
				deletedInCommit[change.Path] = struct{}{}
				engine.logger.Debug(deletedFileMessageConstant, zap.String(commitFieldNameConstant, source.Short()), zap.String(pathFieldNameConstant, change.Path))
				continue
			}
		}

		ruleName, eligible := engine.formatter.RuleFor(change.Path)
		if !eligible {
			engine.logger.Debug(ineligibleFileMessageConstant, zap.String(commitFieldNameConstant, source.Short()), zap.String(pathFieldNameConstant, change.Path))
			continue
		}

		changed, formatError := engine.formatter.FormatInPlace(executionContext, change.Path)
		if formatError != nil {
			var formatterError formatter.FormatterError
			if !errors.As(formatError, &formatterError) {
				return nil, engine.failure(cursor, StageFormat, source, formatError)
			}
			outcome.SkippedFiles = append(outcome.SkippedFiles, change.Path)
			engine.logger.Warn(formatterFailedMessageConstant,
				zap.String(commitFieldNameConstant, source.Short()),
				zap.String(pathFieldNameConstant, change.Path),
				zap.String(ruleFieldNameConstant, ruleName),
				zap.Error(formatError),
			)
			continue
		}

		if changed {
			outcome.FormattedFiles = append(outcome.FormattedFiles, change.Path)
			engine.logger.Debug(formattedFileMessageConstant,
				zap.String(commitFieldNameConstant, source.Short()),
				zap.String(pathFieldNameConstant, change.Path),
				zap.String(ruleFieldNameConstant, ruleName),
			)
		} else {
			engine.logger.Debug(unchangedFileMessageConstant,
				zap.String(commitFieldNameConstant, source.Short()),
				zap.String(pathFieldNameConstant, change.Path),
				zap.String(ruleFieldNameConstant, ruleName),
			)
		}
	}
	return deletedInCommit, nil
}

// amendIfChanged folds formatting changes into the source commit and returns the resulting HEAD.
func (engine *Engine) amendIfChanged(executionContext context.Context, cursor *Cursor, source gitrepo.CommitRef, outcome *CommitOutcome) (gitrepo.CommitRef, error) {
	if positionError := cursor.requirePosition(CursorWalking, source); positionError != nil {
		return "", engine.failure(cursor, StageAmend, source, positionError)
	}

	dirty, dirtyError := engine.repository.IsWorkingTreeDirty(executionContext)
	if dirtyError != nil {
		return "", engine.failure(cursor, StageAmend, source, dirtyError)
	}
	if dirty {
		if amendError := engine.repository.AmendCommit(executionContext); amendError != nil {
			return "", engine.failure(cursor, StageAmend, source, amendError)
		}
		outcome.Amended = true
	} else {
		engine.logger.Info(noReformattingMessageConstant, zap.String(commitFieldNameConstant, source.Short()))
	}

	amendedCommit, resolveError := engine.repository.Resolve(executionContext, headReferenceConstant)
	if resolveError != nil {
		return "", engine.failure(cursor, StageResolveAmended, source, resolveError)
	}
	cursor.amended(amendedCommit)

	if outcome.Amended {
		engine.logger.Debug(amendedCommitMessageConstant,
			zap.String(commitFieldNameConstant, source.Short()),
			zap.String(targetFieldNameConstant, amendedCommit.Short()),
		)
	}
	return amendedCommit, nil
}

// applyChanges writes the net change of the amended commit onto the checked out target tip and stages it.
func (engine *Engine) applyChanges(executionContext context.Context, cursor *Cursor, targetTip gitrepo.CommitRef, source gitrepo.CommitRef, amendedCommit gitrepo.CommitRef, deletedInCommit map[string]struct{}) error {
	changes, changesError := engine.repository.ChangedFiles(executionContext, amendedCommit)
	if changesError != nil {
		return engine.failure(cursor, StageListReplayFiles, source, changesError)
	}

	for _, change := range changes {
		if positionError := cursor.requirePosition(CursorReplaying, targetTip); positionError != nil {
			return engine.failure(cursor, StageApplyChange, source, positionError)
		}

		_, deleted := deletedInCommit[change.Path]
		if deleted || change.IsDeleted() {
			if removeError := engine.repository.RemoveFile(executionContext, change.Path); removeError != nil {
				return engine.failure(cursor, StageApplyChange, source, removeError)
			}
			continue
		}

		recorded, readError := engine.repository.ReadFileAtCommit(executionContext, amendedCommit, change.Path)
		if readError != nil {
			return engine.failure(cursor, StageApplyChange, source, readError)
		}
		if writeError := engine.repository.WriteWorktreeFile(change.Path, recorded); writeError != nil {
			return engine.failure(cursor, StageApplyChange, source, writeError)
		}
		if addError := engine.repository.AddFile(executionContext, change.Path); addError != nil {
			return engine.failure(cursor, StageApplyChange, source, addError)
		}
	}
	return nil
}

// createBranch names the final tip. An empty range still moves the working tree to the after boundary first.
func (engine *Engine) createBranch(executionContext context.Context, cursor *Cursor, finalTip gitrepo.CommitRef, branchName string) error {
	if cursor.State() == CursorIdle {
		if checkoutError := engine.repository.Checkout(executionContext, finalTip); checkoutError != nil {
			return engine.failure(cursor, StageCreateBranch, "", checkoutError)
		}
		cursor.moveTo(CursorAdvancing, finalTip)
	}

	if positionError := cursor.requirePosition(CursorAdvancing, finalTip); positionError != nil {
		return engine.failure(cursor, StageCreateBranch, "", positionError)
	}
	if branchError := engine.repository.CreateBranch(executionContext, branchName); branchError != nil {
		return engine.failure(cursor, StageCreateBranch, "", branchError)
	}
	cursor.finish()
	return nil
}

func (engine *Engine) failure(cursor *Cursor, stage ReplayStage, source gitrepo.CommitRef, cause error) error {
	cursor.fail()
	lastSource, lastTarget := cursor.LastReplayed()
	return ReplayError{
		Stage:              stage,
		SourceCommit:       source,
		LastReplayedSource: lastSource,
		LastReplayedTarget: lastTarget,
		WorkingTreeCommit:  cursor.CheckedOut(),
		Cause:              cause,
	}
}

func (engine *Engine) logFailure(failure error) {
	var replayError ReplayError
	if !errors.As(failure, &replayError) {
		engine.logger.Error(replayFailedMessageConstant, zap.Error(failure))
		return
	}
	engine.logger.Error(replayFailedMessageConstant,
		zap.String(stageFieldNameConstant, string(replayError.Stage)),
		zap.String(commitFieldNameConstant, replayError.SourceCommit.Short()),
		zap.String(lastReplayedSourceFieldNameConstant, replayError.LastReplayedSource.Short()),
		zap.String(lastReplayedTargetFieldNameConstant, replayError.LastReplayedTarget.Short()),
		zap.String(workingTreeCommitFieldNameConstant, replayError.WorkingTreeCommit.Short()),
		zap.Error(replayError.Cause),
	)
}
