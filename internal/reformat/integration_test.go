package reformat_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/execshell"
	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
	"github.com/tyemirov/branchfmt/internal/preflight"
	"github.com/tyemirov/branchfmt/internal/reformat"
	"github.com/tyemirov/branchfmt/internal/testsupport/gitfixture"
)

const (
	integrationTargetBranchConstant      = "main"
	integrationFeatureBranchConstant     = "feature"
	integrationDestinationBranchConstant = "feature-reformatted"
	integrationAppConfigPathConstant     = "config/app.yaml"
	integrationExtraConfigPathConstant   = "config/extra.yaml"
	integrationNotesPathConstant         = "notes.txt"
	integrationScriptPathConstant        = "scripts/run.sh"
	integrationLinkPathConstant          = "scripts/latest.sh"
	integrationLinkTargetConstant        = "run.sh"
	integrationAuthorLogFormatConstant   = "--format=%an <%ae> %at"
)

func reformatRequest(fixture *gitfixture.Repository, prior string, after string) preflight.Request {
	return preflight.Request{
		WorkingDirectory: fixture.Directory,
		PriorReference:   prior,
		AfterReference:   after,
		TargetBranch:     integrationTargetBranchConstant,
		BranchSuffix:     reformat.DefaultBranchSuffix,
	}
}

func newGitService(testInstance *testing.T, fixture *gitfixture.Repository) *reformat.Service {
	testInstance.Helper()

	executor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
	require.NoError(testInstance, executorError)
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	reader, readerError := gitrepo.NewHistoryReader(fixture.Directory)
	require.NoError(testInstance, readerError)
	repository, repositoryError := gitrepo.NewRepository(fixture.Directory, manager, reader, nil)
	require.NoError(testInstance, repositoryError)

	suite, suiteError := formatter.NewSuite(fixture.Directory, []formatter.RuleConfiguration{
		{Kind: formatter.KindYAML, Suffixes: []string{".yaml"}},
	}, formatter.SuiteDependencies{})
	require.NoError(testInstance, suiteError)

	service, serviceError := reformat.NewService(reformat.ServiceDependencies{
		Logger:     zap.NewNop(),
		Repository: repository,
		Formatter:  suite,
	})
	require.NoError(testInstance, serviceError)
	return service
}

func TestServiceReformatsRealRepository(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)

	fixture.WriteFile(integrationAppConfigPathConstant, "name:     demo\n")
	fixture.WriteFile(integrationNotesPathConstant, "hello\n")
	prior := fixture.CommitAll("initial import")

	fixture.Git("checkout", "--quiet", "-b", integrationFeatureBranchConstant)
	fixture.WriteFile(integrationExtraConfigPathConstant, "key:    value\n")
	fixture.CommitAll("add extra configuration")
	fixture.Git("rm", "--quiet", integrationAppConfigPathConstant)
	fixture.WriteFile(integrationNotesPathConstant, "hello\nworld\n")
	featureTip := fixture.CommitAll("drop app configuration")

	fixture.Git("checkout", "--quiet", integrationTargetBranchConstant)
	fixture.WriteFile(integrationAppConfigPathConstant, "name: demo\n")
	after := fixture.CommitAll("reformat configuration")
	fixture.Git("checkout", "--quiet", integrationFeatureBranchConstant)

	service := newGitService(testInstance, fixture)
	result, reformatError := service.Reformat(context.Background(), preflight.Request{
		WorkingDirectory: fixture.Directory,
		PriorReference:   prior,
		AfterReference:   after,
		TargetBranch:     integrationTargetBranchConstant,
		BranchSuffix:     reformat.DefaultBranchSuffix,
	})
	require.NoError(testInstance, reformatError)

	require.Equal(testInstance, integrationDestinationBranchConstant, fixture.Git("rev-parse", "--abbrev-ref", "HEAD"))
	require.Equal(testInstance, string(result.FinalTip), fixture.Git("rev-parse", integrationDestinationBranchConstant))
	require.Equal(testInstance, after, fixture.Git("rev-parse", integrationDestinationBranchConstant+"~2"))
	require.Equal(testInstance, "drop app configuration\nadd extra configuration",
		fixture.Git("log", "--format=%s", integrationTargetBranchConstant+".."+integrationDestinationBranchConstant))

	require.Equal(testInstance, "key: value", fixture.ShowFile(integrationDestinationBranchConstant, integrationExtraConfigPathConstant))
	require.Equal(testInstance, "hello\nworld", fixture.ShowFile(integrationDestinationBranchConstant, integrationNotesPathConstant))
	require.NotZero(testInstance, fixture.GitExitCode("cat-file", "-e", integrationDestinationBranchConstant+":"+integrationAppConfigPathConstant))

	require.Len(testInstance, result.Commits, 2)
	require.True(testInstance, result.Commits[0].Amended)
	require.Equal(testInstance, []string{integrationExtraConfigPathConstant}, result.Commits[0].FormattedFiles)
	require.False(testInstance, result.Commits[1].Amended)

	require.Equal(testInstance, featureTip, fixture.Git("rev-parse", integrationFeatureBranchConstant))
	require.Empty(testInstance, fixture.Git("status", "--porcelain"))
}

func TestServiceRefusesDirtyRealRepository(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)

	fixture.WriteFile(integrationNotesPathConstant, "hello\n")
	prior := fixture.CommitAll("initial import")
	fixture.WriteFile(integrationNotesPathConstant, "hello again\n")
	after := fixture.CommitAll("reformat")
	fixture.Git("checkout", "--quiet", "-b", integrationFeatureBranchConstant, prior)
	fixture.WriteFile(integrationNotesPathConstant, "pending\n")

	service := newGitService(testInstance, fixture)
	_, reformatError := service.Reformat(context.Background(), preflight.Request{
		WorkingDirectory: fixture.Directory,
		PriorReference:   prior,
		AfterReference:   after,
		TargetBranch:     integrationTargetBranchConstant,
		BranchSuffix:     reformat.DefaultBranchSuffix,
	})
	require.ErrorIs(testInstance, reformatError, preflight.ErrDirtyWorktree)

	require.Equal(testInstance, integrationFeatureBranchConstant, fixture.Git("rev-parse", "--abbrev-ref", "HEAD"))
	require.NotZero(testInstance, fixture.GitExitCode("rev-parse", "--verify", "--quiet", integrationDestinationBranchConstant))
}

func TestServiceRefusesBranchAlreadyOnReformattedHistory(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)

	fixture.WriteFile(integrationAppConfigPathConstant, "name:     demo\n")
	prior := fixture.CommitAll("initial import")
	fixture.WriteFile(integrationAppConfigPathConstant, "name: demo\n")
	after := fixture.CommitAll("reformat configuration")

	fixture.Git("checkout", "--quiet", "-b", integrationFeatureBranchConstant)
	fixture.WriteFile(integrationExtraConfigPathConstant, "key:    value\n")
	featureTip := fixture.CommitAll("add extra configuration")

	service := newGitService(testInstance, fixture)
	_, previewError := service.Preview(context.Background(), reformatRequest(fixture, prior, after))
	require.ErrorIs(testInstance, previewError, preflight.ErrAlreadyAdvanced)

	_, reformatError := service.Reformat(context.Background(), reformatRequest(fixture, prior, after))
	require.ErrorIs(testInstance, reformatError, preflight.ErrAlreadyAdvanced)
	var preflightError preflight.PreflightError
	require.ErrorAs(testInstance, reformatError, &preflightError)
	require.Equal(testInstance, preflight.CheckTargetNotAdvanced, preflightError.Check)

	require.Equal(testInstance, integrationFeatureBranchConstant, fixture.Git("rev-parse", "--abbrev-ref", "HEAD"))
	require.Equal(testInstance, featureTip, fixture.Git("rev-parse", integrationFeatureBranchConstant))
	require.NotZero(testInstance, fixture.GitExitCode("rev-parse", "--verify", "--quiet", integrationDestinationBranchConstant))
}

func TestServicePreservesCommitAuthorship(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)

	fixture.WriteFile(integrationAppConfigPathConstant, "name:     demo\n")
	prior := fixture.CommitAll("initial import")

	fixture.Git("checkout", "--quiet", "-b", integrationFeatureBranchConstant)
	fixture.WriteFile(integrationExtraConfigPathConstant, "key:    value\n")
	fixture.Git("add", "--all")
	fixture.Git("-c", "user.name=Ada Lovelace", "-c", "user.email=ada@example.com",
		"commit", "--quiet", "--date=981173106 +0000", "-m", "add extra configuration")
	fixture.WriteFile(integrationNotesPathConstant, "hello\n")
	fixture.Git("add", "--all")
	fixture.Git("-c", "user.name=Grace Hopper", "-c", "user.email=grace@example.com",
		"commit", "--quiet", "--date=1015218367 +0000", "-m", "add notes")

	fixture.Git("checkout", "--quiet", integrationTargetBranchConstant)
	fixture.WriteFile(integrationAppConfigPathConstant, "name: demo\n")
	after := fixture.CommitAll("reformat configuration")
	fixture.Git("checkout", "--quiet", integrationFeatureBranchConstant)

	service := newGitService(testInstance, fixture)
	result, reformatError := service.Reformat(context.Background(), reformatRequest(fixture, prior, after))
	require.NoError(testInstance, reformatError)
	require.True(testInstance, result.Commits[0].Amended)

	expectedAuthors := fixture.Git("log", "--reverse", integrationAuthorLogFormatConstant, prior+".."+integrationFeatureBranchConstant)
	replayedAuthors := fixture.Git("log", "--reverse", integrationAuthorLogFormatConstant, integrationTargetBranchConstant+".."+integrationDestinationBranchConstant)
	require.Equal(testInstance, expectedAuthors, replayedAuthors)
	require.Equal(testInstance, []string{
		"Ada Lovelace <ada@example.com> 981173106",
		"Grace Hopper <grace@example.com> 1015218367",
	}, strings.Split(replayedAuthors, "\n"))
}

func TestServicePreservesExecutableAndSymlinkModes(testInstance *testing.T) {
	fixture := gitfixture.New(testInstance)

	fixture.WriteFile(integrationNotesPathConstant, "hello\n")
	prior := fixture.CommitAll("initial import")

	fixture.Git("checkout", "--quiet", "-b", integrationFeatureBranchConstant)
	fixture.WriteFile(integrationScriptPathConstant, "#!/bin/sh\necho run\n")
	require.NoError(testInstance, os.Chmod(filepath.Join(fixture.Directory, filepath.FromSlash(integrationScriptPathConstant)), 0o755))
	require.NoError(testInstance, os.Symlink(integrationLinkTargetConstant, filepath.Join(fixture.Directory, filepath.FromSlash(integrationLinkPathConstant))))
	fixture.WriteFile(integrationExtraConfigPathConstant, "key:    value\n")
	fixture.CommitAll("add scripts")

	fixture.Git("checkout", "--quiet", integrationTargetBranchConstant)
	fixture.WriteFile(integrationNotesPathConstant, "hello, reformatted\n")
	after := fixture.CommitAll("reformat notes")
	fixture.Git("checkout", "--quiet", integrationFeatureBranchConstant)

	service := newGitService(testInstance, fixture)
	_, reformatError := service.Reformat(context.Background(), reformatRequest(fixture, prior, after))
	require.NoError(testInstance, reformatError)

	require.True(testInstance, strings.HasPrefix(
		fixture.Git("ls-tree", integrationFeatureBranchConstant, integrationScriptPathConstant), "100755 "))
	require.True(testInstance, strings.HasPrefix(
		fixture.Git("ls-tree", integrationDestinationBranchConstant, integrationScriptPathConstant), "100755 "))
	require.True(testInstance, strings.HasPrefix(
		fixture.Git("ls-tree", integrationDestinationBranchConstant, integrationLinkPathConstant), "120000 "))
	require.Equal(testInstance, integrationLinkTargetConstant, fixture.ShowFile(integrationDestinationBranchConstant, integrationLinkPathConstant))
	require.Equal(testInstance, "key: value", fixture.ShowFile(integrationDestinationBranchConstant, integrationExtraConfigPathConstant))
	require.Empty(testInstance, fixture.Git("status", "--porcelain"))
}
