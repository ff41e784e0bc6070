package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/preflight"
	"github.com/tyemirov/branchfmt/internal/reformat"
	"github.com/tyemirov/branchfmt/internal/utils"
	flagutils "github.com/tyemirov/branchfmt/internal/utils/flags"
)

const (
	commandUseConstant                = "reformat-branch"
	commandUseTemplateConstant        = commandUseConstant + " <commit_prior_to_reformat> <commit_after_reformat> <target_branch>"
	commandShortDescriptionConstant   = "Reformat a branch made before a mass reformat"
	commandLongDescriptionConstant    = "reformat-branch replays every commit of the current branch onto the reformatted history, formatting the files each commit touches, and names the result after the current branch with a suffix. The original branch is left unchanged."
	commandArgumentCountConstant      = 3
	suffixFlagNameConstant            = "suffix"
	suffixFlagUsageConstant           = "Suffix appended to the current branch name to name the reformatted branch"
	clangFormatFlagNameConstant       = "clang-format"
	clangFormatFlagUsageConstant      = "Path to the clang-format binary used by the clang-format rule"
	clangFormatRuleNameConstant       = "clang-format"
	completedHeaderConstant           = "reformat-branch is done running.\n\n"
	completedBranchTemplateConstant   = "A copy of your branch has been made named '%s', and formatted (%d of %d commits amended).\n\n"
	completedUnchangedConstant        = "The original branch has been left unchanged.\n"
	completedNextStepTemplateConstant = "The next step is to rebase the new branch on '%s'.\n"
	skippedFileTemplateConstant       = "Skipped %s in %s: formatter failed\n"
	dryRunHeaderTemplateConstant      = "DRY-RUN: %d commits would be replayed onto %s as '%s'\n"
	dryRunCommitTemplateConstant      = "DRY-RUN: %s formats %d files, deletes %d files\n"
	dryRunFileTemplateConstant        = "  format %s\n"
	dryRunDeletedTemplateConstant     = "  delete %s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// MigrationService performs or previews a branch migration.
type MigrationService interface {
	Reformat(executionContext context.Context, request preflight.Request) (reformat.MigrationResult, error)
	Preview(executionContext context.Context, request preflight.Request) (reformat.DryRunReport, error)
}

// ServiceRequest carries what a ServiceFactory needs to assemble a MigrationService.
type ServiceRequest struct {
	WorkingDirectory     string
	Configuration        reformat.CommandConfiguration
	Logger               *zap.Logger
	HumanReadableLogging bool
}

// ServiceFactory assembles a MigrationService bound to one working directory.
type ServiceFactory func(request ServiceRequest) (MigrationService, error)

// CommandBuilder assembles the reformat-branch Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() reformat.CommandConfiguration
	WorkingDirectoryProvider     func() (string, error)
	ServiceFactory               ServiceFactory
}

type commandOptions struct {
	workingDirectory string
	configuration    reformat.CommandConfiguration
	request          preflight.Request
	dryRun           bool
	debugLogging     bool
}

// Build constructs the reformat-branch command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseTemplateConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(commandArgumentCountConstant),
		RunE:          builder.run,
	}

	flagutils.BindExecutionFlags(
		command,
		flagutils.ExecutionDefaults{},
		flagutils.ExecutionFlagDefinitions{
			DryRun: flagutils.ExecutionFlagDefinition{Name: flagutils.DryRunFlagName, Usage: flagutils.DryRunFlagUsage, Enabled: true},
		},
	)
	command.Flags().String(suffixFlagNameConstant, "", suffixFlagUsageConstant)
	command.Flags().String(clangFormatFlagNameConstant, "", clangFormatFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLogging)
	service, serviceError := builder.resolveServiceFactory()(ServiceRequest{
		WorkingDirectory:     options.workingDirectory,
		Configuration:        options.configuration,
		Logger:               logger,
		HumanReadableLogging: builder.humanReadableLogging(),
	})
	if serviceError != nil {
		return serviceError
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	if options.dryRun {
		report, previewError := service.Preview(executionContext, options.request)
		if previewError != nil {
			return previewError
		}
		writeDryRunReport(command.OutOrStdout(), report, options.request.TargetBranch)
		return nil
	}

	result, reformatError := service.Reformat(executionContext, options.request)
	if reformatError != nil {
		return reformatError
	}
	writeMigrationSummary(command.OutOrStdout(), result, options.request.TargetBranch)
	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	contextAccessor := utils.NewCommandContextAccessor()
	executionContext := command.Context()

	debugLogging := false
	if logLevel, available := contextAccessor.LogLevel(executionContext); available {
		debugLogging = strings.EqualFold(logLevel, string(utils.LogLevelDebug))
	}

	suffixValue, suffixChanged, suffixError := flagutils.StringFlag(command, suffixFlagNameConstant)
	if suffixError != nil {
		return commandOptions{}, suffixError
	}
	if suffixChanged {
		configuration.BranchSuffix = suffixValue
	}

	clangFormatValue, clangFormatChanged, clangFormatError := flagutils.StringFlag(command, clangFormatFlagNameConstant)
	if clangFormatError != nil {
		return commandOptions{}, clangFormatError
	}
	if clangFormatChanged {
		configuration.Formatters = overrideClangFormatCommand(configuration.Formatters, clangFormatValue)
	}
	configuration = configuration.Sanitize()

	dryRun := false
	if executionFlags, available := flagutils.ResolveExecutionFlags(command); available {
		dryRun = executionFlags.DryRun
	}

	workingDirectory, workingDirectoryError := builder.resolveWorkingDirectory(executionContext)
	if workingDirectoryError != nil {
		return commandOptions{}, workingDirectoryError
	}

	return commandOptions{
		workingDirectory: workingDirectory,
		configuration:    configuration,
		request: preflight.Request{
			WorkingDirectory: workingDirectory,
			PriorReference:   strings.TrimSpace(arguments[0]),
			AfterReference:   strings.TrimSpace(arguments[1]),
			TargetBranch:     strings.TrimSpace(arguments[2]),
			BranchSuffix:     configuration.BranchSuffix,
		},
		dryRun:       dryRun,
		debugLogging: debugLogging,
	}, nil
}

func (builder *CommandBuilder) resolveWorkingDirectory(executionContext context.Context) (string, error) {
	if workingDirectory, available := utils.NewCommandContextAccessor().WorkingDirectory(executionContext); available {
		return workingDirectory, nil
	}
	if builder.WorkingDirectoryProvider != nil {
		return builder.WorkingDirectoryProvider()
	}
	return os.Getwd()
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}

func (builder *CommandBuilder) resolveConfiguration() reformat.CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return reformat.DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func (builder *CommandBuilder) resolveServiceFactory() ServiceFactory {
	if builder.ServiceFactory != nil {
		return builder.ServiceFactory
	}
	return NewGitServiceFactory()
}

// overrideClangFormatCommand points every clang-format command rule at binaryPath.
func overrideClangFormatCommand(rules []formatter.RuleConfiguration, binaryPath string) []formatter.RuleConfiguration {
	trimmedPath := strings.TrimSpace(binaryPath)
	if len(trimmedPath) == 0 {
		return rules
	}

	overridden := make([]formatter.RuleConfiguration, 0, len(rules))
	for _, rule := range formatter.SanitizeRules(rules) {
		if rule.Kind == formatter.KindCommand && rule.Name == clangFormatRuleNameConstant {
			rule.Command = trimmedPath
		}
		overridden = append(overridden, rule)
	}
	return overridden
}

func writeMigrationSummary(output io.Writer, result reformat.MigrationResult, targetBranch string) {
	for _, outcome := range result.Commits {
		for _, skippedPath := range outcome.SkippedFiles {
			fmt.Fprintf(output, skippedFileTemplateConstant, skippedPath, outcome.SourceCommit.Short())
		}
	}
	fmt.Fprint(output, completedHeaderConstant)
	fmt.Fprintf(output, completedBranchTemplateConstant, result.DestinationBranch, result.AmendedCount(), len(result.Commits))
	fmt.Fprint(output, completedUnchangedConstant)
	fmt.Fprintf(output, completedNextStepTemplateConstant, targetBranch)
}

func writeDryRunReport(output io.Writer, report reformat.DryRunReport, targetBranch string) {
	fmt.Fprintf(output, dryRunHeaderTemplateConstant, len(report.Commits), targetBranch, report.DestinationBranch)
	for _, planned := range report.Commits {
		fmt.Fprintf(output, dryRunCommitTemplateConstant, planned.Commit.Short(), len(planned.EligibleFiles), len(planned.DeletedFiles))
		for _, eligiblePath := range planned.EligibleFiles {
			fmt.Fprintf(output, dryRunFileTemplateConstant, eligiblePath)
		}
		for _, deletedPath := range planned.DeletedFiles {
			fmt.Fprintf(output, dryRunDeletedTemplateConstant, deletedPath)
		}
	}
}
