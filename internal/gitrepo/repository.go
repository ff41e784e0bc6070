package gitrepo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

const (
	worktreeFilePermissionsConstant       = 0o644
	worktreeExecutablePermissionsConstant = 0o755
	worktreeDirectoryPermissionsConstant  = 0o755
	headReferenceConstant                 = "HEAD"
	writeWorktreeOperationNameConstant    = RepositoryOperationName("WriteWorktreeFile")
	pathExistsOperationNameConstant       = RepositoryOperationName("PathExists")
	historyReaderFieldNameConstant        = "history_reader"
	repositoryManagerFieldNameConstant    = "repository_manager"
)

// Repository binds one working tree to the shell manager, the history reader, and the worktree filesystem.
// All paths passed to its file operations are relative to the repository root.
type Repository struct {
	repositoryPath string
	manager        *RepositoryManager
	reader         *HistoryReader
	worktree       billy.Filesystem
}

// NewRepository constructs a Repository. A nil worktree filesystem is replaced with an
// operating system filesystem rooted at repositoryPath that does not follow symbolic links on removal.
func NewRepository(repositoryPath string, manager *RepositoryManager, reader *HistoryReader, worktree billy.Filesystem) (*Repository, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if manager == nil {
		return nil, InvalidRepositoryInputError{FieldName: repositoryManagerFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if reader == nil {
		return nil, InvalidRepositoryInputError{FieldName: historyReaderFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if worktree == nil {
		worktree = osfs.New(trimmedPath, osfs.WithChrootOS())
	}

	return &Repository{
		repositoryPath: trimmedPath,
		manager:        manager,
		reader:         reader,
		worktree:       worktree,
	}, nil
}

// RepositoryRoot returns the top-level directory of the working tree.
func (repository *Repository) RepositoryRoot(executionContext context.Context) (string, error) {
	return repository.manager.RepositoryRoot(executionContext, repository.repositoryPath)
}

// Resolve resolves a reference to the commit it names.
func (repository *Repository) Resolve(executionContext context.Context, reference string) (CommitRef, error) {
	return repository.manager.ResolveCommit(executionContext, repository.repositoryPath, reference)
}

// IsCommit reports whether the identifier names a commit object.
func (repository *Repository) IsCommit(executionContext context.Context, commit CommitRef) (bool, error) {
	return repository.reader.IsCommit(executionContext, commit)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (repository *Repository) IsAncestor(executionContext context.Context, ancestor CommitRef, descendant CommitRef) (bool, error) {
	return repository.reader.IsAncestor(executionContext, ancestor, descendant)
}

// IsDetachedHead reports whether HEAD is detached.
func (repository *Repository) IsDetachedHead(executionContext context.Context) (bool, error) {
	return repository.manager.IsDetachedHead(executionContext, repository.repositoryPath)
}

// IsWorkingTreeDirty reports whether the working tree has pending changes.
func (repository *Repository) IsWorkingTreeDirty(executionContext context.Context) (bool, error) {
	clean, cleanError := repository.manager.CheckCleanWorktree(executionContext, repository.repositoryPath)
	if cleanError != nil {
		return false, cleanError
	}
	return !clean, nil
}

// MergeBase returns the merge base of HEAD and reference.
func (repository *Repository) MergeBase(executionContext context.Context, reference CommitRef) (CommitRef, error) {
	return repository.mergeBaseOf(executionContext, headReferenceConstant, string(reference))
}

// mergeBaseOf returns the merge base of two references.
func (repository *Repository) mergeBaseOf(executionContext context.Context, first string, second string) (CommitRef, error) {
	firstCommit, firstError := repository.Resolve(executionContext, first)
	if firstError != nil {
		return "", firstError
	}
	secondCommit, secondError := repository.Resolve(executionContext, second)
	if secondError != nil {
		return "", secondError
	}
	return repository.reader.MergeBase(executionContext, firstCommit, secondCommit)
}

// CurrentBranchName returns the checked out branch name.
func (repository *Repository) CurrentBranchName(executionContext context.Context) (string, error) {
	return repository.manager.GetCurrentBranch(executionContext, repository.repositoryPath)
}

// BranchExists reports whether a local branch exists.
func (repository *Repository) BranchExists(executionContext context.Context, branchName string) (bool, error) {
	return repository.manager.BranchExists(executionContext, repository.repositoryPath, branchName)
}

// ListCommits returns the first-parent commits after fromExclusive through toInclusive, oldest first.
func (repository *Repository) ListCommits(executionContext context.Context, fromExclusive CommitRef, toInclusive CommitRef) ([]CommitRef, error) {
	return repository.reader.ListCommits(executionContext, fromExclusive, toInclusive)
}

// Checkout detaches HEAD at commit.
func (repository *Repository) Checkout(executionContext context.Context, commit CommitRef) error {
	return repository.manager.CheckoutDetached(executionContext, repository.repositoryPath, commit)
}

// ChangedFiles lists the paths commit touched relative to its first parent.
func (repository *Repository) ChangedFiles(executionContext context.Context, commit CommitRef) ([]FileChange, error) {
	return repository.reader.ChangedFiles(executionContext, commit)
}

// ReadFileAtCommit returns the content and mode of filePath recorded in commit.
func (repository *Repository) ReadFileAtCommit(executionContext context.Context, commit CommitRef, filePath string) (RecordedFile, error) {
	return repository.reader.ReadFileAtCommit(executionContext, commit, filePath)
}

// AmendCommit folds working tree changes into HEAD.
func (repository *Repository) AmendCommit(executionContext context.Context) error {
	return repository.manager.AmendCommit(executionContext, repository.repositoryPath)
}

// CommitWithMessageFrom commits the index with the message and authorship of source.
func (repository *Repository) CommitWithMessageFrom(executionContext context.Context, source CommitRef) error {
	return repository.manager.CommitWithMessageFrom(executionContext, repository.repositoryPath, source)
}

// RemoveFile stages the deletion of filePath.
func (repository *Repository) RemoveFile(executionContext context.Context, filePath string) error {
	return repository.manager.RemoveFile(executionContext, repository.repositoryPath, filePath)
}

// AddFile stages filePath.
func (repository *Repository) AddFile(executionContext context.Context, filePath string) error {
	return repository.manager.AddFile(executionContext, repository.repositoryPath, filePath)
}

// CreateBranch creates and checks out a branch at HEAD.
func (repository *Repository) CreateBranch(executionContext context.Context, branchName string) error {
	return repository.manager.CreateBranch(executionContext, repository.repositoryPath, branchName)
}

// WriteWorktreeFile replaces the working tree entry at filePath with the recorded file, creating parent directories.
// Regular files are written 0644, executables 0755, and symbolic links are recreated as links.
func (repository *Repository) WriteWorktreeFile(filePath string, recorded RecordedFile) error {
	normalizedPath, normalizeError := normalizeWorktreePath(filePath)
	if normalizeError != nil {
		return normalizeError
	}

	parentDirectory := path.Dir(normalizedPath)
	if parentDirectory != "." {
		if mkdirError := repository.worktree.MkdirAll(parentDirectory, worktreeDirectoryPermissionsConstant); mkdirError != nil {
			return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: mkdirError}
		}
	}

	existing, lstatError := repository.worktree.Lstat(normalizedPath)
	if lstatError != nil && !errors.Is(lstatError, fs.ErrNotExist) {
		return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: lstatError}
	}
	if lstatError == nil && (recorded.IsSymlink() || existing.Mode()&os.ModeSymlink != 0) {
		if removeError := repository.worktree.Remove(normalizedPath); removeError != nil {
			return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: removeError}
		}
	}

	if recorded.IsSymlink() {
		if symlinkError := repository.worktree.Symlink(string(recorded.Content), normalizedPath); symlinkError != nil {
			return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: symlinkError}
		}
		return nil
	}

	permissions := os.FileMode(worktreeFilePermissionsConstant)
	if recorded.IsExecutable() {
		permissions = worktreeExecutablePermissionsConstant
	}

	file, openError := repository.worktree.OpenFile(normalizedPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permissions)
	if openError != nil {
		return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: openError}
	}

	_, writeError := file.Write(recorded.Content)
	closeError := file.Close()
	if writeError != nil {
		return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: writeError}
	}
	if closeError != nil {
		return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: closeError}
	}

	if changer, supportsChmod := repository.worktree.(billy.Chmod); supportsChmod {
		if chmodError := changer.Chmod(normalizedPath, permissions); chmodError != nil {
			return RepositoryOperationError{Operation: writeWorktreeOperationNameConstant, Cause: chmodError}
		}
	}
	return nil
}

// PathExists reports whether filePath exists in the working tree. Symbolic links are not followed.
func (repository *Repository) PathExists(filePath string) (bool, error) {
	normalizedPath, normalizeError := normalizeWorktreePath(filePath)
	if normalizeError != nil {
		return false, normalizeError
	}

	_, statError := repository.worktree.Lstat(normalizedPath)
	if statError == nil {
		return true, nil
	}
	if errors.Is(statError, fs.ErrNotExist) {
		return false, nil
	}
	return false, RepositoryOperationError{Operation: pathExistsOperationNameConstant, Cause: statError}
}

func normalizeWorktreePath(filePath string) (string, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return path.Clean(filepath.ToSlash(trimmedPath)), nil
}
