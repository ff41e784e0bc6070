package gitrepo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/execshell"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
	"github.com/tyemirov/branchfmt/internal/testsupport/gitfixture"
)

const (
	facadeNestedPathConstant               = "nested/dir/file.h"
	facadeExecutablePathConstant           = "scripts/run.sh"
	facadeRegularModeCaseConstant          = "new_regular_file"
	facadeNewExecutableCaseConstant        = "new_executable_file"
	facadeExistingExecutableCaseConstant   = "existing_executable_file"
	facadeExecutableBitDroppedCaseConstant = "executable_bit_dropped"
	facadeSymlinkCaseConstant              = "file_replaced_by_symlink"
)

func newFacadeParts(testInstance *testing.T, repositoryPath string) (*gitrepo.RepositoryManager, *gitrepo.HistoryReader) {
	testInstance.Helper()
	executor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
	require.NoError(testInstance, executorError)
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	reader, readerError := gitrepo.NewHistoryReader(repositoryPath)
	require.NoError(testInstance, readerError)
	return manager, reader
}

func TestNewRepositoryValidation(testInstance *testing.T) {
	manager, reader := newFacadeParts(testInstance, testRepositoryPathConstant)

	_, pathError := gitrepo.NewRepository(" ", manager, reader, nil)
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, pathError)

	_, managerError := gitrepo.NewRepository(testRepositoryPathConstant, nil, reader, nil)
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, managerError)

	_, readerError := gitrepo.NewRepository(testRepositoryPathConstant, manager, nil, nil)
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, readerError)

	repository, creationError := gitrepo.NewRepository(testRepositoryPathConstant, manager, reader, memfs.New())
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, repository)
}

func TestRepositoryWriteWorktreeFileCreatesParents(testInstance *testing.T) {
	manager, reader := newFacadeParts(testInstance, testRepositoryPathConstant)
	worktree := memfs.New()
	repository, creationError := gitrepo.NewRepository(testRepositoryPathConstant, manager, reader, worktree)
	require.NoError(testInstance, creationError)

	exists, existsError := repository.PathExists(facadeNestedPathConstant)
	require.NoError(testInstance, existsError)
	require.False(testInstance, exists)

	require.NoError(testInstance, repository.WriteWorktreeFile(facadeNestedPathConstant, gitrepo.RecordedFile{Content: []byte("first\n"), Mode: filemode.Regular}))
	require.NoError(testInstance, repository.WriteWorktreeFile(facadeNestedPathConstant, gitrepo.RecordedFile{Content: []byte("2\n"), Mode: filemode.Regular}))

	exists, existsError = repository.PathExists(facadeNestedPathConstant)
	require.NoError(testInstance, existsError)
	require.True(testInstance, exists)

	file, openError := worktree.Open(facadeNestedPathConstant)
	require.NoError(testInstance, openError)
	defer file.Close()
	buffer := make([]byte, 16)
	readCount, _ := file.Read(buffer)
	require.Equal(testInstance, "2\n", string(buffer[:readCount]))

	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, repository.WriteWorktreeFile("", gitrepo.RecordedFile{}))
}

func TestRepositoryWriteWorktreeFileAppliesRecordedMode(testInstance *testing.T) {
	testCases := []struct {
		name                string
		existingMode        os.FileMode
		recorded            gitrepo.RecordedFile
		expectedPermissions os.FileMode
		expectSymlink       bool
	}{
		{
			name:                facadeRegularModeCaseConstant,
			recorded:            gitrepo.RecordedFile{Content: []byte("plain\n"), Mode: filemode.Regular},
			expectedPermissions: 0o644,
		},
		{
			name:                facadeNewExecutableCaseConstant,
			recorded:            gitrepo.RecordedFile{Content: []byte("#!/bin/sh\necho ok\n"), Mode: filemode.Executable},
			expectedPermissions: 0o755,
		},
		{
			name:                facadeExistingExecutableCaseConstant,
			existingMode:        0o755,
			recorded:            gitrepo.RecordedFile{Content: []byte("#!/bin/sh\necho ok\n"), Mode: filemode.Executable},
			expectedPermissions: 0o755,
		},
		{
			name:                facadeExecutableBitDroppedCaseConstant,
			existingMode:        0o755,
			recorded:            gitrepo.RecordedFile{Content: []byte("no longer a script\n"), Mode: filemode.Regular},
			expectedPermissions: 0o644,
		},
		{
			name:          facadeSymlinkCaseConstant,
			existingMode:  0o644,
			recorded:      gitrepo.RecordedFile{Content: []byte("target.sh"), Mode: filemode.Symlink},
			expectSymlink: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			directory := testInstance.TempDir()
			entryPath := filepath.Join(directory, filepath.FromSlash(facadeExecutablePathConstant))
			require.NoError(testInstance, os.MkdirAll(filepath.Dir(entryPath), 0o755))
			if testCase.existingMode != 0 {
				require.NoError(testInstance, os.WriteFile(entryPath, []byte("#!/bin/sh\n"), testCase.existingMode))
				require.NoError(testInstance, os.Chmod(entryPath, testCase.existingMode))
			}

			manager, reader := newFacadeParts(testInstance, directory)
			repository, creationError := gitrepo.NewRepository(directory, manager, reader, nil)
			require.NoError(testInstance, creationError)

			require.NoError(testInstance, repository.WriteWorktreeFile(facadeExecutablePathConstant, testCase.recorded))

			info, lstatError := os.Lstat(entryPath)
			require.NoError(testInstance, lstatError)
			if testCase.expectSymlink {
				require.NotZero(testInstance, info.Mode()&os.ModeSymlink)
				linkTarget, readlinkError := os.Readlink(entryPath)
				require.NoError(testInstance, readlinkError)
				require.Equal(testInstance, string(testCase.recorded.Content), linkTarget)
				return
			}

			require.Zero(testInstance, info.Mode()&os.ModeSymlink)
			require.Equal(testInstance, testCase.expectedPermissions, info.Mode().Perm())
			content, readError := os.ReadFile(entryPath)
			require.NoError(testInstance, readError)
			require.Equal(testInstance, string(testCase.recorded.Content), string(content))
		})
	}
}

func TestRepositoryWriteWorktreeFileReplacesSymlink(testInstance *testing.T) {
	directory := testInstance.TempDir()
	targetPath := filepath.Join(directory, "target.txt")
	linkPath := filepath.Join(directory, "link.txt")
	require.NoError(testInstance, os.WriteFile(targetPath, []byte("target\n"), 0o644))
	require.NoError(testInstance, os.Symlink("target.txt", linkPath))

	manager, reader := newFacadeParts(testInstance, directory)
	repository, creationError := gitrepo.NewRepository(directory, manager, reader, nil)
	require.NoError(testInstance, creationError)

	require.NoError(testInstance, repository.WriteWorktreeFile("link.txt", gitrepo.RecordedFile{Content: []byte("regular now\n"), Mode: filemode.Regular}))

	info, lstatError := os.Lstat(linkPath)
	require.NoError(testInstance, lstatError)
	require.Zero(testInstance, info.Mode()&os.ModeSymlink)

	targetContent, readError := os.ReadFile(targetPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, "target\n", string(targetContent))
}

func TestRepositoryFacadeAgainstRealGit(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)
	fixture.WriteFile("base.txt", "base\n")
	base := gitrepo.CommitRef(fixture.CommitAll("base"))
	fixture.WriteFile("feature.txt", "feature\n")
	tip := gitrepo.CommitRef(fixture.CommitAll("feature"))

	manager, reader := newFacadeParts(testInstance, fixture.Directory)
	repository, creationError := gitrepo.NewRepository(fixture.Directory, manager, reader, nil)
	require.NoError(testInstance, creationError)
	executionContext := context.Background()

	root, rootError := repository.RepositoryRoot(executionContext)
	require.NoError(testInstance, rootError)
	require.Equal(testInstance, fixture.Directory, root)

	resolved, resolveError := repository.Resolve(executionContext, "main")
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, tip, resolved)

	mergeBase, mergeBaseError := repository.MergeBase(executionContext, base)
	require.NoError(testInstance, mergeBaseError)
	require.Equal(testInstance, base, mergeBase)

	branch, branchError := repository.CurrentBranchName(executionContext)
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "main", branch)

	dirty, dirtyError := repository.IsWorkingTreeDirty(executionContext)
	require.NoError(testInstance, dirtyError)
	require.False(testInstance, dirty)

	require.NoError(testInstance, repository.Checkout(executionContext, base))
	detached, detachedError := repository.IsDetachedHead(executionContext)
	require.NoError(testInstance, detachedError)
	require.True(testInstance, detached)

	require.NoError(testInstance, repository.WriteWorktreeFile("feature.txt", gitrepo.RecordedFile{Content: []byte("replayed\n"), Mode: filemode.Regular}))
	require.NoError(testInstance, repository.AddFile(executionContext, "feature.txt"))
	require.NoError(testInstance, repository.RemoveFile(executionContext, "never-tracked.txt"))
	require.NoError(testInstance, repository.CommitWithMessageFrom(executionContext, tip))
	require.Equal(testInstance, "feature", fixture.Git("log", "-1", "--format=%s"))

	require.NoError(testInstance, repository.CreateBranch(executionContext, "main-reformatted"))
	exists, existsError := repository.BranchExists(executionContext, "main-reformatted")
	require.NoError(testInstance, existsError)
	require.True(testInstance, exists)

	missing, missingError := repository.BranchExists(executionContext, "absent")
	require.NoError(testInstance, missingError)
	require.False(testInstance, missing)
}
