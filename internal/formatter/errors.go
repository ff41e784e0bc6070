package formatter

import (
	"errors"
	"fmt"
)

const (
	noRulesMessageConstant                 = "no formatter rules configured"
	noMatchingRuleMessageConstant          = "no formatter rule matches path"
	executorNotConfiguredMessageConstant   = "formatter command executor not configured"
	formatterErrorTemplateConstant         = "formatter %s failed for %s: %v"
	formatterUnavailableTemplateConstant   = "formatter %s is unavailable: command %q not found: %v"
	invalidRuleTemplateConstant            = "formatter rule %q is invalid: %s"
	emptySuffixesMessageConstant           = "at least one suffix is required"
	emptyCommandMessageConstant            = "command is required for command rules"
	unsupportedKindMessageTemplateConstant = "unsupported kind %q"
)

var (
	// ErrNoRules indicates a suite built without any rule.
	ErrNoRules = errors.New(noRulesMessageConstant)
	// ErrNoMatchingRule indicates a path no rule is responsible for.
	ErrNoMatchingRule = errors.New(noMatchingRuleMessageConstant)
	// ErrExecutorNotConfigured indicates a command rule without a command executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// FormatterError reports a single failed formatting attempt. Callers skip the file and continue.
type FormatterError struct {
	Rule  string
	Path  string
	Cause error
}

// Error describes the failed invocation.
func (formatterError FormatterError) Error() string {
	return fmt.Sprintf(formatterErrorTemplateConstant, formatterError.Rule, formatterError.Path, formatterError.Cause)
}

// Unwrap exposes the underlying failure.
func (formatterError FormatterError) Unwrap() error {
	return formatterError.Cause
}

// FormatterUnavailableError reports a command rule whose binary cannot be located.
type FormatterUnavailableError struct {
	Rule    string
	Command string
	Cause   error
}

// Error describes the missing binary.
func (unavailableError FormatterUnavailableError) Error() string {
	return fmt.Sprintf(formatterUnavailableTemplateConstant, unavailableError.Rule, unavailableError.Command, unavailableError.Cause)
}

// Unwrap exposes the lookup failure.
func (unavailableError FormatterUnavailableError) Unwrap() error {
	return unavailableError.Cause
}

// InvalidRuleError reports a rule that cannot be turned into a formatter.
type InvalidRuleError struct {
	Rule    string
	Message string
}

// Error describes the invalid rule.
func (ruleError InvalidRuleError) Error() string {
	return fmt.Sprintf(invalidRuleTemplateConstant, ruleError.Rule, ruleError.Message)
}
