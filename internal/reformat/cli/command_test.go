package cli_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
	"github.com/tyemirov/branchfmt/internal/preflight"
	"github.com/tyemirov/branchfmt/internal/reformat"
	"github.com/tyemirov/branchfmt/internal/reformat/cli"
	"github.com/tyemirov/branchfmt/internal/utils"
	flagutils "github.com/tyemirov/branchfmt/internal/utils/flags"
)

const (
	testWorkingDirectoryConstant = "/tmp/branchfmt-repository"
	testPriorReferenceConstant   = "prior-ref"
	testAfterReferenceConstant   = "after-ref"
	testTargetBranchConstant     = "master"
	testSourceCommitConstant     = gitrepo.CommitRef("1234567890abcdef1234567890abcdef12345678")
	dryRunFlagArgumentConstant   = "--" + flagutils.DryRunFlagName
	suffixFlagArgumentConstant   = "--suffix"
	clangFormatArgumentConstant  = "--clang-format"
)

type recordingService struct {
	reformatRequests []preflight.Request
	previewRequests  []preflight.Request
	result           reformat.MigrationResult
	report           reformat.DryRunReport
	failure          error
}

func (service *recordingService) Reformat(_ context.Context, request preflight.Request) (reformat.MigrationResult, error) {
	service.reformatRequests = append(service.reformatRequests, request)
	return service.result, service.failure
}

func (service *recordingService) Preview(_ context.Context, request preflight.Request) (reformat.DryRunReport, error) {
	service.previewRequests = append(service.previewRequests, request)
	return service.report, service.failure
}

type commandHarness struct {
	service         *recordingService
	serviceRequests []cli.ServiceRequest
	builder         cli.CommandBuilder
}

func newCommandHarness(configuration reformat.CommandConfiguration) *commandHarness {
	harness := &commandHarness{service: &recordingService{
		result: reformat.MigrationResult{
			DestinationBranch: "feature-reformatted",
			Commits: []reformat.CommitOutcome{
				{SourceCommit: testSourceCommitConstant, Amended: true, SkippedFiles: []string{"broken.cpp"}},
				{SourceCommit: testSourceCommitConstant},
			},
		},
		report: reformat.DryRunReport{
			DestinationBranch: "feature-reformatted",
			Commits: []reformat.PlannedCommit{
				{Commit: testSourceCommitConstant, EligibleFiles: []string{"foo.cpp"}, DeletedFiles: []string{"bar.h"}},
			},
		},
	}}
	harness.builder = cli.CommandBuilder{
		LoggerProvider:           func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider:    func() reformat.CommandConfiguration { return configuration },
		WorkingDirectoryProvider: func() (string, error) { return testWorkingDirectoryConstant, nil },
		ServiceFactory: func(request cli.ServiceRequest) (cli.MigrationService, error) {
			harness.serviceRequests = append(harness.serviceRequests, request)
			return harness.service, nil
		},
	}
	return harness
}

func (harness *commandHarness) execute(testInstance *testing.T, executionContext context.Context, arguments ...string) (string, error) {
	testInstance.Helper()
	command, buildError := harness.builder.Build()
	require.NoError(testInstance, buildError)

	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetErr(&bytes.Buffer{})
	command.SetContext(executionContext)
	command.SetArgs(arguments)
	executionError := command.Execute()
	return output.String(), executionError
}

func TestCommandForwardsArgumentsAndConfiguration(testInstance *testing.T) {
	harness := newCommandHarness(reformat.CommandConfiguration{BranchSuffix: "-fmt"})

	output, executionError := harness.execute(testInstance, context.Background(), testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	require.NoError(testInstance, executionError)

	require.Len(testInstance, harness.service.reformatRequests, 1)
	require.Empty(testInstance, harness.service.previewRequests)
	require.Equal(testInstance, preflight.Request{
		WorkingDirectory: testWorkingDirectoryConstant,
		PriorReference:   testPriorReferenceConstant,
		AfterReference:   testAfterReferenceConstant,
		TargetBranch:     testTargetBranchConstant,
		BranchSuffix:     "-fmt",
	}, harness.service.reformatRequests[0])

	require.Len(testInstance, harness.serviceRequests, 1)
	require.Equal(testInstance, testWorkingDirectoryConstant, harness.serviceRequests[0].WorkingDirectory)
	require.Equal(testInstance, formatter.DefaultRules(), harness.serviceRequests[0].Configuration.Formatters)

	require.Contains(testInstance, output, "reformat-branch is done running.")
	require.Contains(testInstance, output, "A copy of your branch has been made named 'feature-reformatted', and formatted (1 of 2 commits amended).")
	require.Contains(testInstance, output, "The original branch has been left unchanged.")
	require.Contains(testInstance, output, "The next step is to rebase the new branch on 'master'.")
	require.Contains(testInstance, output, "Skipped broken.cpp in 1234567890ab: formatter failed")
}

func TestCommandFlagsOverrideConfiguration(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())

	_, executionError := harness.execute(testInstance, context.Background(),
		suffixFlagArgumentConstant, "-clang", clangFormatArgumentConstant, "/opt/llvm/bin/clang-format",
		testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, "-clang", harness.service.reformatRequests[0].BranchSuffix)
	rules := harness.serviceRequests[0].Configuration.Formatters
	require.Len(testInstance, rules, 1)
	require.Equal(testInstance, "/opt/llvm/bin/clang-format", rules[0].Command)
}

func TestCommandDryRunPreviewsOnly(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())

	output, executionError := harness.execute(testInstance, context.Background(),
		dryRunFlagArgumentConstant, testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	require.NoError(testInstance, executionError)

	require.Empty(testInstance, harness.service.reformatRequests)
	require.Len(testInstance, harness.service.previewRequests, 1)
	require.Contains(testInstance, output, "DRY-RUN: 1 commits would be replayed onto master as 'feature-reformatted'")
	require.Contains(testInstance, output, "  format foo.cpp")
	require.Contains(testInstance, output, "  delete bar.h")
}

func TestCommandRequiresThreeArguments(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())

	_, executionError := harness.execute(testInstance, context.Background(), testPriorReferenceConstant, testAfterReferenceConstant)
	require.Error(testInstance, executionError)
	require.Empty(testInstance, harness.serviceRequests)
}

func TestCommandPropagatesServiceFailure(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())
	harness.service.failure = preflight.PreflightError{Check: preflight.CheckCleanWorktree, Cause: preflight.ErrDirtyWorktree}

	output, executionError := harness.execute(testInstance, context.Background(), testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	require.ErrorIs(testInstance, executionError, preflight.ErrDirtyWorktree)
	require.Empty(testInstance, output)
}

func TestCommandPropagatesFactoryFailure(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())
	unavailable := formatter.FormatterUnavailableError{Rule: "clang-format", Command: "clang-format", Cause: errors.New("executable file not found")}
	harness.builder.ServiceFactory = func(cli.ServiceRequest) (cli.MigrationService, error) {
		return nil, unavailable
	}

	_, executionError := harness.execute(testInstance, context.Background(), testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	var unavailableError formatter.FormatterUnavailableError
	require.ErrorAs(testInstance, executionError, &unavailableError)
}

func TestCommandPrefersContextWorkingDirectory(testInstance *testing.T) {
	harness := newCommandHarness(reformat.DefaultCommandConfiguration())
	executionContext := utils.NewCommandContextAccessor().WithWorkingDirectory(context.Background(), "/srv/checkout")

	_, executionError := harness.execute(testInstance, executionContext, testPriorReferenceConstant, testAfterReferenceConstant, testTargetBranchConstant)
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "/srv/checkout", harness.service.reformatRequests[0].WorkingDirectory)
}
