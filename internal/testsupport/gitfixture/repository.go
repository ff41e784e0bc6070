// Package gitfixture builds throwaway git repositories for tests that exercise real git.
package gitfixture

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/branchfmt/internal/execshell"
)

const (
	gitExecutableNameConstant                = "git"
	gitConfigSystemEnvironmentNameConstant   = "GIT_CONFIG_SYSTEM"
	gitConfigGlobalEnvironmentNameConstant   = "GIT_CONFIG_GLOBAL"
	gitConfigNoSystemEnvironmentNameConstant = "GIT_CONFIG_NOSYSTEM"
	gitTerminalPromptEnvironmentNameConstant = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisableValueConstant    = "0"
	gitConfigNoSystemValueConstant           = "1"
	defaultBranchNameConstant                = "main"
	fixtureUserNameConstant                  = "Fixture User"
	fixtureUserEmailConstant                 = "fixture@example.com"
	fixtureFilePermissionsConstant           = 0o644
	fixtureDirectoryPermissionsConstant      = 0o755
	gitMissingSkipMessageConstant            = "git executable not available"
	gitCommandFailureTemplateConstant        = "git %s failed with exit code %d: %s"
)

// Repository is a scratch repository rooted in a test temporary directory.
type Repository struct {
	testInstance testing.TB
	runner       *execshell.OSCommandRunner
	Directory    string
}

// New initializes a repository on branch main with a local identity. The git global and
// system configuration are isolated for the process so code under test sees the same settings.
func New(testInstance testing.TB) *Repository {
	testInstance.Helper()
	RequireGit(testInstance)

	testInstance.Setenv(gitConfigGlobalEnvironmentNameConstant, os.DevNull)
	testInstance.Setenv(gitConfigSystemEnvironmentNameConstant, os.DevNull)
	testInstance.Setenv(gitConfigNoSystemEnvironmentNameConstant, gitConfigNoSystemValueConstant)
	testInstance.Setenv(gitTerminalPromptEnvironmentNameConstant, gitTerminalPromptDisableValueConstant)

	directory, resolveError := filepath.EvalSymlinks(testInstance.TempDir())
	require.NoError(testInstance, resolveError)

	repository := &Repository{
		testInstance: testInstance,
		runner:       execshell.NewOSCommandRunner(),
		Directory:    directory,
	}
	repository.Git("-c", "init.defaultBranch="+defaultBranchNameConstant, "init", "--quiet", "-b", defaultBranchNameConstant)
	repository.Git("config", "user.name", fixtureUserNameConstant)
	repository.Git("config", "user.email", fixtureUserEmailConstant)
	repository.Git("config", "commit.gpgsign", "false")
	return repository
}

// RequireGit skips the test when git is not installed.
func RequireGit(testInstance testing.TB) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath(gitExecutableNameConstant); lookupError != nil {
		testInstance.Skip(gitMissingSkipMessageConstant)
	}
}

// Git runs git in the repository and returns trimmed standard output. A non-zero exit fails the test.
func (repository *Repository) Git(arguments ...string) string {
	repository.testInstance.Helper()
	result := repository.run(arguments...)
	if result.ExitCode != 0 {
		repository.testInstance.Fatalf(gitCommandFailureTemplateConstant, strings.Join(arguments, " "), result.ExitCode, strings.TrimSpace(result.StandardError))
	}
	return strings.TrimSpace(result.StandardOutput)
}

// GitExitCode runs git and returns its exit code without failing the test.
func (repository *Repository) GitExitCode(arguments ...string) int {
	repository.testInstance.Helper()
	return repository.run(arguments...).ExitCode
}

// WriteFile writes content to a path relative to the repository root, creating parent directories.
func (repository *Repository) WriteFile(relativePath string, content string) {
	repository.testInstance.Helper()
	absolutePath := filepath.Join(repository.Directory, filepath.FromSlash(relativePath))
	require.NoError(repository.testInstance, os.MkdirAll(filepath.Dir(absolutePath), fixtureDirectoryPermissionsConstant))
	require.NoError(repository.testInstance, os.WriteFile(absolutePath, []byte(content), fixtureFilePermissionsConstant))
}

// ReadFile returns the working tree content of a path relative to the repository root.
func (repository *Repository) ReadFile(relativePath string) string {
	repository.testInstance.Helper()
	content, readError := os.ReadFile(filepath.Join(repository.Directory, filepath.FromSlash(relativePath)))
	require.NoError(repository.testInstance, readError)
	return string(content)
}

// CommitAll stages every change and commits it, returning the new HEAD identifier.
func (repository *Repository) CommitAll(message string) string {
	repository.testInstance.Helper()
	repository.Git("add", "--all")
	repository.Git("commit", "--quiet", "--allow-empty", "-m", message)
	return repository.Head()
}

// Head returns the full identifier of HEAD.
func (repository *Repository) Head() string {
	repository.testInstance.Helper()
	return repository.Git("rev-parse", "HEAD")
}

// ShowFile returns the content of a path recorded in a revision.
func (repository *Repository) ShowFile(revision string, relativePath string) string {
	repository.testInstance.Helper()
	return repository.Git("show", revision+":"+relativePath)
}

func (repository *Repository) run(arguments ...string) execshell.ExecutionResult {
	repository.testInstance.Helper()
	result, runError := repository.runner.Run(context.Background(), execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        arguments,
			WorkingDirectory: repository.Directory,
		},
	})
	require.NoError(repository.testInstance, runError)
	return result
}
