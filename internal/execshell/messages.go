package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant              = "Running %s"
	genericSuccessTemplateConstant            = "Completed %s"
	genericFailureTemplateConstant            = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant   = "%s failed: %s"
	commandLabelTemplateConstant              = "%s%s"
	commandLabelWithArgumentsTemplateConstant = "%s %s"
	workingDirectorySuffixTemplateConstant    = " (in %s)"
	commandArgumentsJoinSeparatorConstant     = " "
	standardErrorSuffixTemplateConstant       = ": %s"
	unknownFailureMessageConstant             = "unknown error"
	emptyStringConstant                       = ""
	defaultWorkingDirectoryLabelConstant      = "current directory"
	fallbackUnknownValueLabelConstant         = "unknown"
	flagPrefixConstant                        = "-"
	argumentSeparatorConstant                 = "--"
)

const (
	gitConfigurationFlagConstant          = "-c"
	gitRevParseSubcommandNameConstant     = "rev-parse"
	gitShowTopLevelFlagConstant           = "--show-toplevel"
	gitAbbrevRefFlagConstant              = "--abbrev-ref"
	gitHeadReferenceConstant              = "HEAD"
	gitStatusSubcommandNameConstant       = "status"
	gitCheckoutSubcommandNameConstant     = "checkout"
	gitCreateBranchFlagConstant           = "-b"
	gitCommitSubcommandNameConstant       = "commit"
	gitAmendFlagConstant                  = "--amend"
	gitReuseMessageFlagPrefixConstant     = "--reuse-message="
	gitAddSubcommandNameConstant          = "add"
	gitRemoveSubcommandNameConstant       = "rm"
	gitShowRefSubcommandNameConstant      = "show-ref"
	gitExpectedMissingExitCodeConstant    = 1
	gitQuietFlagConstant                  = "--quiet"
	gitVerifyFlagConstant                 = "--verify"
	gitLocalBranchReferencePrefixConstant = "refs/heads/"
)

const (
	gitRootStartTemplateConstant                      = "Locating repository root from %s"
	gitRootSuccessTemplateConstant                    = "Repository root for %s is %s"
	gitRootFailureTemplateConstant                    = "Could not locate repository root from %s (exit code %d%s)"
	gitRootExecutionFailureTemplateConstant           = "Unable to locate repository root from %s: %s"
	gitCurrentBranchStartTemplateConstant             = "Identifying current branch in %s"
	gitCurrentBranchSuccessTemplateConstant           = "Current branch in %s is %s"
	gitCurrentBranchDetachedSuccessTemplateConstant   = "%s is in a detached HEAD state"
	gitCurrentBranchFailureTemplateConstant           = "Failed to identify current branch in %s (exit code %d%s)"
	gitCurrentBranchExecutionFailureTemplateConstant  = "Unable to identify current branch in %s: %s"
	gitRevisionStartTemplateConstant                  = "Resolving %s in %s"
	gitRevisionSuccessTemplateConstant                = "%s in %s resolved to %s"
	gitRevisionFailureTemplateConstant                = "Failed to resolve %s in %s (exit code %d%s)"
	gitRevisionExecutionFailureTemplateConstant       = "Unable to resolve %s in %s: %s"
	gitStatusStartTemplateConstant                    = "Reviewing working tree status in %s"
	gitStatusSuccessTemplateConstant                  = "Collected working tree status for %s"
	gitStatusFailureTemplateConstant                  = "Failed to review working tree status in %s (exit code %d%s)"
	gitStatusExecutionFailureTemplateConstant         = "Unable to review working tree status in %s: %s"
	gitCheckoutStartTemplateConstant                  = "Checking out %s in %s"
	gitCheckoutSuccessTemplateConstant                = "%s now at %s"
	gitCheckoutFailureTemplateConstant                = "Failed to check out %s in %s (exit code %d%s)"
	gitCheckoutExecutionFailureTemplateConstant       = "Unable to check out %s in %s: %s"
	gitBranchCreationStartTemplateConstant            = "Creating branch %s in %s"
	gitBranchCreationSuccessTemplateConstant          = "Created branch %s in %s"
	gitBranchCreationFailureTemplateConstant          = "Failed to create branch %s in %s (exit code %d%s)"
	gitBranchCreationExecutionFailureTemplateConstant = "Unable to create branch %s in %s: %s"
	gitAmendStartTemplateConstant                     = "Amending HEAD with reformatted files in %s"
	gitAmendSuccessTemplateConstant                   = "Amended HEAD with reformatted files in %s"
	gitAmendFailureTemplateConstant                   = "Failed to amend HEAD in %s (exit code %d%s)"
	gitAmendExecutionFailureTemplateConstant          = "Unable to amend HEAD in %s: %s"
	gitReplayStartTemplateConstant                    = "Replaying commit %s in %s"
	gitReplaySuccessTemplateConstant                  = "Replayed commit %s in %s"
	gitReplayFailureTemplateConstant                  = "Failed to replay commit %s in %s (exit code %d%s)"
	gitReplayExecutionFailureTemplateConstant         = "Unable to replay commit %s in %s: %s"
	gitAddStartTemplateConstant                       = "Staging %s in %s"
	gitAddSuccessTemplateConstant                     = "Staged %s in %s"
	gitAddFailureTemplateConstant                     = "Failed to stage %s in %s (exit code %d%s)"
	gitAddExecutionFailureTemplateConstant            = "Unable to stage %s in %s: %s"
	gitRemoveStartTemplateConstant                    = "Staging removal of %s in %s"
	gitRemoveSuccessTemplateConstant                  = "Staged removal of %s in %s"
	gitRemoveFailureTemplateConstant                  = "Failed to stage removal of %s in %s (exit code %d%s)"
	gitRemoveExecutionFailureTemplateConstant         = "Unable to stage removal of %s in %s: %s"
	gitBranchLookupStartTemplateConstant              = "Checking whether branch %s exists in %s"
	gitBranchLookupSuccessTemplateConstant            = "Branch %s exists in %s"
	gitBranchLookupFailureTemplateConstant            = "Failed to look up branch %s in %s (exit code %d%s)"
	gitBranchLookupExecutionFailureTemplateConstant   = "Unable to look up branch %s in %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// isExpectedNonZeroExit reports lookups whose exit code 1 signals absence rather than failure.
func (formatter CommandMessageFormatter) isExpectedNonZeroExit(command ShellCommand, result ExecutionResult) bool {
	if command.Name != CommandGit || result.ExitCode != gitExpectedMissingExitCodeConstant {
		return false
	}
	arguments := stripGitConfiguration(command.Details.Arguments)
	if len(arguments) == 0 || !containsArgument(arguments, gitQuietFlagConstant) || !containsArgument(arguments, gitVerifyFlagConstant) {
		return false
	}
	subcommand := strings.TrimSpace(arguments[0])
	return subcommand == gitShowRefSubcommandNameConstant || subcommand == gitRevParseSubcommandNameConstant
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name == CommandGit {
		return formatter.describeGitMessage(command, result, failure, stage)
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := stripGitConfiguration(command.Details.Arguments)
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	workingDirectory := formatter.describeWorkingDirectory(command)
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)
	failureDescription := formatter.describeFailure(failure)

	subcommand := strings.TrimSpace(arguments[0])
	switch subcommand {
	case gitRevParseSubcommandNameConstant:
		return formatter.describeGitRevParseMessage(arguments, workingDirectory, result, failureDescription, stage)
	case gitStatusSubcommandNameConstant:
		return selectStageMessage(stage,
			fmt.Sprintf(gitStatusStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitStatusSuccessTemplateConstant, workingDirectory),
			fmt.Sprintf(gitStatusFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitStatusExecutionFailureTemplateConstant, workingDirectory, failureDescription),
		)
	case gitCheckoutSubcommandNameConstant:
		target := formatter.ensureValue(extractLastOperand(arguments[1:]))
		if containsArgument(arguments, gitCreateBranchFlagConstant) {
			return selectStageMessage(stage,
				fmt.Sprintf(gitBranchCreationStartTemplateConstant, target, workingDirectory),
				fmt.Sprintf(gitBranchCreationSuccessTemplateConstant, target, workingDirectory),
				fmt.Sprintf(gitBranchCreationFailureTemplateConstant, target, workingDirectory, result.ExitCode, standardErrorSuffix),
				fmt.Sprintf(gitBranchCreationExecutionFailureTemplateConstant, target, workingDirectory, failureDescription),
			)
		}
		return selectStageMessage(stage,
			fmt.Sprintf(gitCheckoutStartTemplateConstant, target, workingDirectory),
			fmt.Sprintf(gitCheckoutSuccessTemplateConstant, workingDirectory, target),
			fmt.Sprintf(gitCheckoutFailureTemplateConstant, target, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitCheckoutExecutionFailureTemplateConstant, target, workingDirectory, failureDescription),
		)
	case gitCommitSubcommandNameConstant:
		if containsArgument(arguments, gitAmendFlagConstant) {
			return selectStageMessage(stage,
				fmt.Sprintf(gitAmendStartTemplateConstant, workingDirectory),
				fmt.Sprintf(gitAmendSuccessTemplateConstant, workingDirectory),
				fmt.Sprintf(gitAmendFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
				fmt.Sprintf(gitAmendExecutionFailureTemplateConstant, workingDirectory, failureDescription),
			)
		}
		source := formatter.ensureValue(findPrefixedValue(arguments, gitReuseMessageFlagPrefixConstant))
		return selectStageMessage(stage,
			fmt.Sprintf(gitReplayStartTemplateConstant, source, workingDirectory),
			fmt.Sprintf(gitReplaySuccessTemplateConstant, source, workingDirectory),
			fmt.Sprintf(gitReplayFailureTemplateConstant, source, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitReplayExecutionFailureTemplateConstant, source, workingDirectory, failureDescription),
		)
	case gitAddSubcommandNameConstant:
		path := formatter.ensureValue(extractLastOperand(arguments[1:]))
		return selectStageMessage(stage,
			fmt.Sprintf(gitAddStartTemplateConstant, path, workingDirectory),
			fmt.Sprintf(gitAddSuccessTemplateConstant, path, workingDirectory),
			fmt.Sprintf(gitAddFailureTemplateConstant, path, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitAddExecutionFailureTemplateConstant, path, workingDirectory, failureDescription),
		)
	case gitRemoveSubcommandNameConstant:
		path := formatter.ensureValue(extractLastOperand(arguments[1:]))
		return selectStageMessage(stage,
			fmt.Sprintf(gitRemoveStartTemplateConstant, path, workingDirectory),
			fmt.Sprintf(gitRemoveSuccessTemplateConstant, path, workingDirectory),
			fmt.Sprintf(gitRemoveFailureTemplateConstant, path, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitRemoveExecutionFailureTemplateConstant, path, workingDirectory, failureDescription),
		)
	case gitShowRefSubcommandNameConstant:
		branch := formatter.ensureValue(strings.TrimPrefix(extractLastOperand(arguments[1:]), gitLocalBranchReferencePrefixConstant))
		return selectStageMessage(stage,
			fmt.Sprintf(gitBranchLookupStartTemplateConstant, branch, workingDirectory),
			fmt.Sprintf(gitBranchLookupSuccessTemplateConstant, branch, workingDirectory),
			fmt.Sprintf(gitBranchLookupFailureTemplateConstant, branch, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitBranchLookupExecutionFailureTemplateConstant, branch, workingDirectory, failureDescription),
		)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRevParseMessage(arguments []string, workingDirectory string, result ExecutionResult, failureDescription string, stage messageStage) string {
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)
	trimmedOutput := strings.TrimSpace(result.StandardOutput)

	if containsArgument(arguments, gitShowTopLevelFlagConstant) {
		return selectStageMessage(stage,
			fmt.Sprintf(gitRootStartTemplateConstant, workingDirectory),
			fmt.Sprintf(gitRootSuccessTemplateConstant, workingDirectory, formatter.ensureValue(trimmedOutput)),
			fmt.Sprintf(gitRootFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitRootExecutionFailureTemplateConstant, workingDirectory, failureDescription),
		)
	}

	if containsArgument(arguments, gitAbbrevRefFlagConstant) {
		successMessage := fmt.Sprintf(gitCurrentBranchSuccessTemplateConstant, workingDirectory, trimmedOutput)
		if trimmedOutput == gitHeadReferenceConstant || len(trimmedOutput) == 0 {
			successMessage = fmt.Sprintf(gitCurrentBranchDetachedSuccessTemplateConstant, workingDirectory)
		}
		return selectStageMessage(stage,
			fmt.Sprintf(gitCurrentBranchStartTemplateConstant, workingDirectory),
			successMessage,
			fmt.Sprintf(gitCurrentBranchFailureTemplateConstant, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitCurrentBranchExecutionFailureTemplateConstant, workingDirectory, failureDescription),
		)
	}

	reference := formatter.ensureValue(extractLastOperand(arguments[1:]))
	return selectStageMessage(stage,
		fmt.Sprintf(gitRevisionStartTemplateConstant, reference, workingDirectory),
		fmt.Sprintf(gitRevisionSuccessTemplateConstant, reference, workingDirectory, formatter.ensureValue(trimmedOutput)),
		fmt.Sprintf(gitRevisionFailureTemplateConstant, reference, workingDirectory, result.ExitCode, standardErrorSuffix),
		fmt.Sprintf(gitRevisionExecutionFailureTemplateConstant, reference, workingDirectory, failureDescription),
	)
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	return selectStageMessage(stage,
		fmt.Sprintf(genericStartTemplateConstant, commandLabel),
		fmt.Sprintf(genericSuccessTemplateConstant, commandLabel),
		fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)),
		fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure)),
	)
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf(commandLabelWithArgumentsTemplateConstant, commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func selectStageMessage(stage messageStage, startMessage string, successMessage string, failureMessage string, executionFailureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	case messageStageFailure:
		return failureMessage
	case messageStageExecutionFailure:
		return executionFailureMessage
	default:
		return emptyStringConstant
	}
}

// stripGitConfiguration drops leading "-c key=value" pairs so the subcommand comes first.
func stripGitConfiguration(arguments []string) []string {
	remaining := arguments
	for len(remaining) >= 2 && strings.TrimSpace(remaining[0]) == gitConfigurationFlagConstant {
		remaining = remaining[2:]
	}
	return remaining
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findPrefixedValue(arguments []string, prefix string) string {
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimPrefix(trimmed, prefix)
		}
	}
	return emptyStringConstant
}

func extractLastOperand(arguments []string) string {
	for index := len(arguments) - 1; index >= 0; index-- {
		argument := strings.TrimSpace(arguments[index])
		if len(argument) == 0 || argument == argumentSeparatorConstant {
			continue
		}
		if strings.HasPrefix(argument, flagPrefixConstant) {
			continue
		}
		return argument
	}
	return emptyStringConstant
}
