package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/branchfmt/internal/execshell"
)

const (
	gitConfigurationFlagConstant              = "-c"
	gitDisableAutoGarbageCollectionConstant   = "gc.auto=0"
	gitStatusSubcommandConstant               = "status"
	gitStatusPorcelainFlagConstant            = "--porcelain"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitAbbrevRefFlagConstant                  = "--abbrev-ref"
	gitShowTopLevelFlagConstant               = "--show-toplevel"
	gitVerifyFlagConstant                     = "--verify"
	gitQuietFlagConstant                      = "--quiet"
	gitHeadReferenceConstant                  = "HEAD"
	gitCommitPeelSuffixConstant               = "^{commit}"
	gitCheckoutSubcommandConstant             = "checkout"
	gitDetachFlagConstant                     = "--detach"
	gitCreateBranchFlagConstant               = "-b"
	gitShowRefSubcommandConstant              = "show-ref"
	gitLocalBranchReferencePrefixConstant     = "refs/heads/"
	gitCommitSubcommandConstant               = "commit"
	gitAllFlagConstant                        = "--all"
	gitAmendFlagConstant                      = "--amend"
	gitNoEditFlagConstant                     = "--no-edit"
	gitAllowEmptyFlagConstant                 = "--allow-empty"
	gitReuseMessageFlagTemplateConstant       = "--reuse-message=%s"
	gitRemoveSubcommandConstant               = "rm"
	gitIgnoreUnmatchFlagConstant              = "--ignore-unmatch"
	gitAddSubcommandConstant                  = "add"
	gitPathSeparatorArgumentConstant          = "--"
	gitMissingReferenceExitCodeConstant       = 1
	repositoryPathFieldNameConstant           = "repository_path"
	branchNameFieldNameConstant               = "branch_name"
	referenceFieldNameConstant                = "reference"
	filePathFieldNameConstant                 = "file_path"
	requiredValueMessageConstant              = "value required"
	executorNotConfiguredMessageConstant      = "git executor not configured"
	referenceNotFoundMessageConstant          = "reference not found"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	referenceNotFoundTemplateConstant         = "%w: %s"
	repositoryRootOperationNameConstant       = RepositoryOperationName("ResolveRepositoryRoot")
	resolveCommitOperationNameConstant        = RepositoryOperationName("ResolveCommit")
	cleanWorktreeOperationNameConstant        = RepositoryOperationName("CheckCleanWorktree")
	currentBranchOperationNameConstant        = RepositoryOperationName("GetCurrentBranch")
	branchExistsOperationNameConstant         = RepositoryOperationName("CheckBranchExists")
	checkoutDetachedOperationNameConstant     = RepositoryOperationName("CheckoutDetached")
	createBranchOperationNameConstant         = RepositoryOperationName("CreateBranch")
	amendCommitOperationNameConstant          = RepositoryOperationName("AmendCommit")
	replayCommitOperationNameConstant         = RepositoryOperationName("CommitWithMessageFrom")
	removeFileOperationNameConstant           = RepositoryOperationName("RemoveFile")
	addFileOperationNameConstant              = RepositoryOperationName("AddFile")
)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager coordinates Git operations through execshell.
type RepositoryManager struct {
	executor GitCommandExecutor
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	// ErrReferenceNotFound indicates a reference that does not name a commit.
	ErrReferenceNotFound = errors.New(referenceNotFoundMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// RepositoryRoot returns the top-level directory of the working tree containing repositoryPath.
func (manager *RepositoryManager) RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.runGit(executionContext, repositoryRootOperationNameConstant, repositoryPath, gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// ResolveCommit resolves a reference to the full identifier of the commit it names.
func (manager *RepositoryManager) ResolveCommit(executionContext context.Context, repositoryPath string, reference string) (CommitRef, error) {
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return "", InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.runGit(executionContext, resolveCommitOperationNameConstant, repositoryPath,
		gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, trimmedReference+gitCommitPeelSuffixConstant)
	if executionError != nil {
		if isExitCode(executionError, gitMissingReferenceExitCodeConstant) {
			return "", RepositoryOperationError{Operation: resolveCommitOperationNameConstant, Cause: fmt.Errorf(referenceNotFoundTemplateConstant, ErrReferenceNotFound, trimmedReference)}
		}
		return "", executionError
	}

	resolved := CommitRef(strings.ToLower(strings.TrimSpace(executionResult.StandardOutput)))
	if !resolved.IsFullHash() {
		return "", RepositoryOperationError{Operation: resolveCommitOperationNameConstant, Cause: fmt.Errorf(referenceNotFoundTemplateConstant, ErrReferenceNotFound, trimmedReference)}
	}
	return resolved, nil
}

// CheckCleanWorktree returns true when the repository has no staged, unstaged, or untracked changes.
func (manager *RepositoryManager) CheckCleanWorktree(executionContext context.Context, repositoryPath string) (bool, error) {
	status, statusError := manager.WorktreeStatus(executionContext, repositoryPath)
	if statusError != nil {
		return false, statusError
	}
	return len(status) == 0, nil
}

// WorktreeStatus returns the porcelain status entries for the repository.
func (manager *RepositoryManager) WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error) {
	executionResult, executionError := manager.runGit(executionContext, cleanWorktreeOperationNameConstant, repositoryPath, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if executionError != nil {
		return nil, executionError
	}

	trimmedOutput := strings.TrimSpace(executionResult.StandardOutput)
	if len(trimmedOutput) == 0 {
		return nil, nil
	}

	lines := strings.Split(trimmedOutput, "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			entries = append(entries, trimmed)
		}
	}
	return entries, nil
}

// GetCurrentBranch resolves the current branch name. A detached HEAD reports "HEAD".
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	executionResult, executionError := manager.runGit(executionContext, currentBranchOperationNameConstant, repositoryPath, gitRevParseSubcommandConstant, gitAbbrevRefFlagConstant, gitHeadReferenceConstant)
	if executionError != nil {
		return "", executionError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// IsDetachedHead reports whether HEAD points at a commit rather than a branch.
func (manager *RepositoryManager) IsDetachedHead(executionContext context.Context, repositoryPath string) (bool, error) {
	currentBranch, branchError := manager.GetCurrentBranch(executionContext, repositoryPath)
	if branchError != nil {
		return false, branchError
	}
	return currentBranch == gitHeadReferenceConstant, nil
}

// BranchExists reports whether a local branch with the provided name exists.
func (manager *RepositoryManager) BranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	trimmedBranch := strings.TrimSpace(branchName)
	if len(trimmedBranch) == 0 {
		return false, InvalidRepositoryInputError{FieldName: branchNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, branchExistsOperationNameConstant, repositoryPath,
		gitShowRefSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, gitLocalBranchReferencePrefixConstant+trimmedBranch)
	if executionError != nil {
		if isExitCode(executionError, gitMissingReferenceExitCodeConstant) {
			return false, nil
		}
		return false, executionError
	}
	return true, nil
}

// CheckoutDetached checks out the provided commit with a detached HEAD.
func (manager *RepositoryManager) CheckoutDetached(executionContext context.Context, repositoryPath string, commit CommitRef) error {
	trimmedCommit := strings.TrimSpace(string(commit))
	if len(trimmedCommit) == 0 {
		return InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, checkoutDetachedOperationNameConstant, repositoryPath, gitCheckoutSubcommandConstant, gitQuietFlagConstant, gitDetachFlagConstant, trimmedCommit)
	return executionError
}

// CreateBranch creates a branch at HEAD and checks it out.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	trimmedBranch := strings.TrimSpace(branchName)
	if len(trimmedBranch) == 0 {
		return InvalidRepositoryInputError{FieldName: branchNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, createBranchOperationNameConstant, repositoryPath, gitCheckoutSubcommandConstant, gitQuietFlagConstant, gitCreateBranchFlagConstant, trimmedBranch)
	return executionError
}

// AmendCommit folds every tracked working tree change into HEAD, keeping its message.
func (manager *RepositoryManager) AmendCommit(executionContext context.Context, repositoryPath string) error {
	_, executionError := manager.runGit(executionContext, amendCommitOperationNameConstant, repositoryPath,
		gitCommitSubcommandConstant, gitQuietFlagConstant, gitAllFlagConstant, gitAmendFlagConstant, gitNoEditFlagConstant, gitAllowEmptyFlagConstant)
	return executionError
}

// CommitWithMessageFrom commits the index reusing the message and authorship of source.
func (manager *RepositoryManager) CommitWithMessageFrom(executionContext context.Context, repositoryPath string, source CommitRef) error {
	trimmedSource := strings.TrimSpace(string(source))
	if len(trimmedSource) == 0 {
		return InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, replayCommitOperationNameConstant, repositoryPath,
		gitCommitSubcommandConstant, gitQuietFlagConstant, gitAllowEmptyFlagConstant, fmt.Sprintf(gitReuseMessageFlagTemplateConstant, trimmedSource))
	return executionError
}

// RemoveFile stages the deletion of a path. Paths already absent from the index are ignored.
func (manager *RepositoryManager) RemoveFile(executionContext context.Context, repositoryPath string, filePath string) error {
	trimmedFilePath := strings.TrimSpace(filePath)
	if len(trimmedFilePath) == 0 {
		return InvalidRepositoryInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, removeFileOperationNameConstant, repositoryPath,
		gitRemoveSubcommandConstant, gitQuietFlagConstant, gitIgnoreUnmatchFlagConstant, gitPathSeparatorArgumentConstant, trimmedFilePath)
	return executionError
}

// AddFile stages the working tree content of a path.
func (manager *RepositoryManager) AddFile(executionContext context.Context, repositoryPath string, filePath string) error {
	trimmedFilePath := strings.TrimSpace(filePath)
	if len(trimmedFilePath) == 0 {
		return InvalidRepositoryInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, executionError := manager.runGit(executionContext, addFileOperationNameConstant, repositoryPath, gitAddSubcommandConstant, gitPathSeparatorArgumentConstant, trimmedFilePath)
	return executionError
}

// runGit executes git with automatic garbage collection disabled so loose objects
// written during a migration stay readable by the history reader.
func (manager *RepositoryManager) runGit(executionContext context.Context, operation RepositoryOperationName, repositoryPath string, arguments ...string) (execshell.ExecutionResult, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return execshell.ExecutionResult{}, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandArguments := make([]string, 0, len(arguments)+2)
	commandArguments = append(commandArguments, gitConfigurationFlagConstant, gitDisableAutoGarbageCollectionConstant)
	commandArguments = append(commandArguments, arguments...)

	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return executionResult, RepositoryOperationError{Operation: operation, Cause: executionError}
	}
	return executionResult, nil
}

func isExitCode(candidate error, exitCode int) bool {
	var failedError execshell.CommandFailedError
	if !errors.As(candidate, &failedError) {
		return false
	}
	return failedError.Result.ExitCode == exitCode
}
