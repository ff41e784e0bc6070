package preflight

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

const (
	headReferenceConstant                    = "HEAD"
	priorBoundaryLabelConstant               = "Commit Prior to Reformat"
	afterBoundaryLabelConstant               = "Commit After Reformat"
	targetBranchLabelConstant                = "Target Branch"
	notRepositoryRootTemplateConstant        = "%w (working directory %s, repository root %s)"
	invalidBoundaryTemplateConstant          = "%s '%s' is %w"
	invalidBoundaryWithCauseTemplateConstant = "%s '%s' is %w: %w"
	notAncestorTemplateConstant              = "%s '%s' %w %s '%s' in this repo"
	notRebasedTemplateConstant               = "%w: please rebase to '%s' and resolve all conflicts before running reformat-branch"
	alreadyAdvancedTemplateConstant          = "%w: merge base of HEAD and '%s' is %s, expected %s"
	destinationExistsTemplateConstant        = "%w: the branch '%s' already exists. Please delete the branch '%s', or rename the current branch"
	mergeCommitInRangeTemplateConstant       = "%w: %w"
	missingRequestFieldTemplateConstant      = "%w: %s is required"
	workingDirectoryFieldNameConstant        = "working directory"
	priorReferenceFieldNameConstant          = "commit prior to reformat"
	afterReferenceFieldNameConstant          = "commit after reformat"
	targetBranchFieldNameConstant            = "target branch"
	branchSuffixFieldNameConstant            = "branch suffix"
	checkPassedMessageConstant               = "Preflight check passed"
	planReadyMessageConstant                 = "Preflight checks passed"
	checkFieldNameConstant                   = "check"
	commitCountFieldNameConstant             = "commit_count"
	destinationBranchFieldNameConstant       = "destination_branch"
	priorBoundaryFieldNameConstant           = "prior_boundary"
	afterBoundaryFieldNameConstant           = "after_boundary"
)

// Repository exposes the read-only repository queries the validator needs.
type Repository interface {
	RepositoryRoot(executionContext context.Context) (string, error)
	Resolve(executionContext context.Context, reference string) (gitrepo.CommitRef, error)
	IsCommit(executionContext context.Context, commit gitrepo.CommitRef) (bool, error)
	IsAncestor(executionContext context.Context, ancestor gitrepo.CommitRef, descendant gitrepo.CommitRef) (bool, error)
	IsDetachedHead(executionContext context.Context) (bool, error)
	IsWorkingTreeDirty(executionContext context.Context) (bool, error)
	MergeBase(executionContext context.Context, reference gitrepo.CommitRef) (gitrepo.CommitRef, error)
	CurrentBranchName(executionContext context.Context) (string, error)
	BranchExists(executionContext context.Context, branchName string) (bool, error)
	ListCommits(executionContext context.Context, fromExclusive gitrepo.CommitRef, toInclusive gitrepo.CommitRef) ([]gitrepo.CommitRef, error)
}

// Request carries the user supplied inputs of a migration.
type Request struct {
	WorkingDirectory string
	PriorReference   string
	AfterReference   string
	TargetBranch     string
	BranchSuffix     string
}

// Plan is the validated description of a migration.
type Plan struct {
	PriorBoundary     gitrepo.CommitRef
	AfterBoundary     gitrepo.CommitRef
	Head              gitrepo.CommitRef
	TargetBranch      string
	CurrentBranch     string
	DestinationBranch string
	Commits           []gitrepo.CommitRef
}

// Validator performs the read-only checks that gate a migration.
type Validator struct {
	repository Repository
	logger     *zap.Logger
}

// NewValidator constructs a Validator. A nil logger is replaced with a no-op logger.
func NewValidator(repository Repository, logger *zap.Logger) (*Validator, error) {
	if repository == nil {
		return nil, ErrRepositoryNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{repository: repository, logger: logger}, nil
}

// Validate runs every check in order and stops at the first failure.
func (validator *Validator) Validate(executionContext context.Context, request Request) (Plan, error) {
	sanitizedRequest, requestError := sanitizeRequest(request)
	if requestError != nil {
		return Plan{}, requestError
	}

	plan := Plan{TargetBranch: sanitizedRequest.TargetBranch}
	checks := []struct {
		name CheckName
		run  func(context.Context, Request, *Plan) error
	}{
		{name: CheckRepositoryRoot, run: validator.checkRepositoryRoot},
		{name: CheckBoundaryCommits, run: validator.checkBoundaryCommits},
		{name: CheckBoundaryAncestry, run: validator.checkBoundaryAncestry},
		{name: CheckAttachedHead, run: validator.checkAttachedHead},
		{name: CheckCleanWorktree, run: validator.checkCleanWorktree},
		{name: CheckRebasedOntoPrior, run: validator.checkRebasedOntoPrior},
		{name: CheckTargetNotAdvanced, run: validator.checkTargetNotAdvanced},
		{name: CheckDestinationBranch, run: validator.checkDestinationBranch},
		{name: CheckLinearHistory, run: validator.checkLinearHistory},
	}

	for _, check := range checks {
		if checkError := check.run(executionContext, sanitizedRequest, &plan); checkError != nil {
			return Plan{}, PreflightError{Check: check.name, Cause: checkError}
		}
		validator.logger.Debug(checkPassedMessageConstant, zap.String(checkFieldNameConstant, string(check.name)))
	}

	validator.logger.Info(planReadyMessageConstant,
		zap.String(priorBoundaryFieldNameConstant, plan.PriorBoundary.Short()),
		zap.String(afterBoundaryFieldNameConstant, plan.AfterBoundary.Short()),
		zap.String(destinationBranchFieldNameConstant, plan.DestinationBranch),
		zap.Int(commitCountFieldNameConstant, len(plan.Commits)),
	)
	return plan, nil
}

func (validator *Validator) checkRepositoryRoot(executionContext context.Context, request Request, _ *Plan) error {
	repositoryRoot, rootError := validator.repository.RepositoryRoot(executionContext)
	if rootError != nil {
		return rootError
	}

	resolvedWorkingDirectory, workingDirectoryError := filepath.EvalSymlinks(request.WorkingDirectory)
	if workingDirectoryError != nil {
		return workingDirectoryError
	}
	resolvedRoot, resolvedRootError := filepath.EvalSymlinks(repositoryRoot)
	if resolvedRootError != nil {
		return resolvedRootError
	}

	if filepath.Clean(resolvedWorkingDirectory) != filepath.Clean(resolvedRoot) {
		return fmt.Errorf(notRepositoryRootTemplateConstant, ErrNotRepositoryRoot, request.WorkingDirectory, repositoryRoot)
	}
	return nil
}

func (validator *Validator) checkBoundaryCommits(executionContext context.Context, request Request, plan *Plan) error {
	priorBoundary, priorError := validator.resolveBoundary(executionContext, priorBoundaryLabelConstant, request.PriorReference)
	if priorError != nil {
		return priorError
	}
	afterBoundary, afterError := validator.resolveBoundary(executionContext, afterBoundaryLabelConstant, request.AfterReference)
	if afterError != nil {
		return afterError
	}

	plan.PriorBoundary = priorBoundary
	plan.AfterBoundary = afterBoundary
	return nil
}

func (validator *Validator) resolveBoundary(executionContext context.Context, label string, reference string) (gitrepo.CommitRef, error) {
	resolved, resolveError := validator.repository.Resolve(executionContext, reference)
	if resolveError != nil {
		if errors.Is(resolveError, gitrepo.ErrReferenceNotFound) {
			return "", fmt.Errorf(invalidBoundaryTemplateConstant, label, reference, ErrInvalidBoundary)
		}
		return "", fmt.Errorf(invalidBoundaryWithCauseTemplateConstant, label, reference, ErrInvalidBoundary, resolveError)
	}

	isCommit, commitError := validator.repository.IsCommit(executionContext, resolved)
	if commitError != nil {
		return "", commitError
	}
	if !isCommit {
		return "", fmt.Errorf(invalidBoundaryTemplateConstant, label, resolved, ErrInvalidBoundary)
	}
	return resolved, nil
}

func (validator *Validator) checkBoundaryAncestry(executionContext context.Context, _ Request, plan *Plan) error {
	isAncestor, ancestorError := validator.repository.IsAncestor(executionContext, plan.PriorBoundary, plan.AfterBoundary)
	if ancestorError != nil {
		return ancestorError
	}
	if !isAncestor {
		return fmt.Errorf(notAncestorTemplateConstant, priorBoundaryLabelConstant, plan.PriorBoundary, ErrNotAncestor, afterBoundaryLabelConstant, plan.AfterBoundary)
	}
	return nil
}

func (validator *Validator) checkAttachedHead(executionContext context.Context, _ Request, plan *Plan) error {
	detached, detachedError := validator.repository.IsDetachedHead(executionContext)
	if detachedError != nil {
		return detachedError
	}
	if detached {
		return ErrDetachedHead
	}

	currentBranch, branchError := validator.repository.CurrentBranchName(executionContext)
	if branchError != nil {
		return branchError
	}
	plan.CurrentBranch = currentBranch
	return nil
}

func (validator *Validator) checkCleanWorktree(executionContext context.Context, _ Request, _ *Plan) error {
	dirty, dirtyError := validator.repository.IsWorkingTreeDirty(executionContext)
	if dirtyError != nil {
		return dirtyError
	}
	if dirty {
		return ErrDirtyWorktree
	}
	return nil
}

func (validator *Validator) checkRebasedOntoPrior(executionContext context.Context, _ Request, plan *Plan) error {
	mergeBase, mergeBaseError := validator.repository.MergeBase(executionContext, plan.PriorBoundary)
	if mergeBaseError != nil {
		return mergeBaseError
	}
	if mergeBase != plan.PriorBoundary {
		return fmt.Errorf(notRebasedTemplateConstant, ErrNotRebased, plan.PriorBoundary)
	}
	return nil
}

func (validator *Validator) checkTargetNotAdvanced(executionContext context.Context, request Request, plan *Plan) error {
	targetCommit, resolveError := validator.repository.Resolve(executionContext, request.TargetBranch)
	if resolveError != nil {
		if errors.Is(resolveError, gitrepo.ErrReferenceNotFound) {
			return fmt.Errorf(invalidBoundaryTemplateConstant, targetBranchLabelConstant, request.TargetBranch, ErrInvalidBoundary)
		}
		return resolveError
	}
	mergeBase, mergeBaseError := validator.repository.MergeBase(executionContext, targetCommit)
	if mergeBaseError != nil {
		return mergeBaseError
	}
	if mergeBase != plan.PriorBoundary {
		return fmt.Errorf(alreadyAdvancedTemplateConstant, ErrAlreadyAdvanced, request.TargetBranch, mergeBase.Short(), plan.PriorBoundary.Short())
	}
	return nil
}

func (validator *Validator) checkDestinationBranch(executionContext context.Context, request Request, plan *Plan) error {
	destinationBranch := plan.CurrentBranch + request.BranchSuffix
	exists, existsError := validator.repository.BranchExists(executionContext, destinationBranch)
	if existsError != nil {
		return existsError
	}
	if exists {
		return fmt.Errorf(destinationExistsTemplateConstant, ErrDestinationExists, destinationBranch, destinationBranch)
	}
	plan.DestinationBranch = destinationBranch
	return nil
}

func (validator *Validator) checkLinearHistory(executionContext context.Context, _ Request, plan *Plan) error {
	head, headError := validator.repository.Resolve(executionContext, headReferenceConstant)
	if headError != nil {
		return headError
	}

	commits, listError := validator.repository.ListCommits(executionContext, plan.PriorBoundary, head)
	if listError != nil {
		var mergeCommitError gitrepo.MergeCommitError
		var boundaryError gitrepo.RangeBoundaryError
		if errors.As(listError, &mergeCommitError) || errors.As(listError, &boundaryError) {
			return fmt.Errorf(mergeCommitInRangeTemplateConstant, ErrMergeCommitInRange, listError)
		}
		return listError
	}

	plan.Head = head
	plan.Commits = commits
	return nil
}

func sanitizeRequest(request Request) (Request, error) {
	sanitized := Request{
		WorkingDirectory: strings.TrimSpace(request.WorkingDirectory),
		PriorReference:   strings.TrimSpace(request.PriorReference),
		AfterReference:   strings.TrimSpace(request.AfterReference),
		TargetBranch:     strings.TrimSpace(request.TargetBranch),
		BranchSuffix:     strings.TrimSpace(request.BranchSuffix),
	}

	requiredFields := []struct {
		name  string
		value string
	}{
		{name: workingDirectoryFieldNameConstant, value: sanitized.WorkingDirectory},
		{name: priorReferenceFieldNameConstant, value: sanitized.PriorReference},
		{name: afterReferenceFieldNameConstant, value: sanitized.AfterReference},
		{name: targetBranchFieldNameConstant, value: sanitized.TargetBranch},
		{name: branchSuffixFieldNameConstant, value: sanitized.BranchSuffix},
	}
	for _, field := range requiredFields {
		if len(field.value) == 0 {
			return Request{}, fmt.Errorf(missingRequestFieldTemplateConstant, ErrInvalidRequest, field.name)
		}
	}
	return sanitized, nil
}
