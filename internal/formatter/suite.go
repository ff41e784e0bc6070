package formatter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/tyemirov/branchfmt/internal/execshell"
)

const (
	formattedFilePermissionsConstant = 0o644
	emptyRuleNameConstant            = "<unnamed>"
)

// CommandExecutor runs external formatter binaries.
type CommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// LookPathFunc resolves a command name to an executable path.
type LookPathFunc func(file string) (string, error)

// SuiteDependencies carries collaborators for NewSuite. Nil members receive defaults:
// an operating system filesystem bound to the root directory and exec.LookPath.
type SuiteDependencies struct {
	Executor   CommandExecutor
	Filesystem billy.Filesystem
	LookPath   LookPathFunc
}

// backend produces formatted content. Backends that rewrite in place return nil content
// and the suite rereads the file.
type backend interface {
	format(executionContext context.Context, relativePath string, original []byte) ([]byte, error)
	rewritesInPlace() bool
}

type boundRule struct {
	name     string
	suffixes []string
	backend  backend
}

// Suite routes files to the first rule whose suffix matches their path.
type Suite struct {
	filesystem billy.Filesystem
	rules      []boundRule
}

// NewSuite validates the rules and binds each to its implementation. Command rules resolve their
// binary immediately and fail with FormatterUnavailableError when it cannot be found.
func NewSuite(rootDirectory string, rules []RuleConfiguration, dependencies SuiteDependencies) (*Suite, error) {
	sanitizedRules := SanitizeRules(rules)
	if len(sanitizedRules) == 0 {
		return nil, ErrNoRules
	}

	filesystem := dependencies.Filesystem
	if filesystem == nil {
		filesystem = osfs.New(rootDirectory, osfs.WithBoundOS())
	}
	lookPath := dependencies.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	boundRules := make([]boundRule, 0, len(sanitizedRules))
	for _, rule := range sanitizedRules {
		ruleName := rule.Name
		if len(ruleName) == 0 {
			ruleName = emptyRuleNameConstant
		}
		if len(rule.Suffixes) == 0 {
			return nil, InvalidRuleError{Rule: ruleName, Message: emptySuffixesMessageConstant}
		}

		var ruleBackend backend
		switch rule.Kind {
		case KindCommand:
			if len(rule.Command) == 0 {
				return nil, InvalidRuleError{Rule: ruleName, Message: emptyCommandMessageConstant}
			}
			if dependencies.Executor == nil {
				return nil, ErrExecutorNotConfigured
			}
			resolvedCommand, lookupError := lookPath(rule.Command)
			if lookupError != nil {
				return nil, FormatterUnavailableError{Rule: ruleName, Command: rule.Command, Cause: lookupError}
			}
			ruleBackend = commandBackend{
				executor:         dependencies.Executor,
				command:          execshell.CommandName(resolvedCommand),
				arguments:        rule.Arguments,
				workingDirectory: rootDirectory,
			}
		case KindGoImports:
			ruleBackend = goImportsBackend{rootDirectory: rootDirectory, formatOnly: rule.FormatOnly}
		case KindGoMod:
			ruleBackend = goModBackend{}
		case KindYAML:
			ruleBackend = yamlBackend{indent: rule.Indent}
		default:
			return nil, InvalidRuleError{Rule: ruleName, Message: fmt.Sprintf(unsupportedKindMessageTemplateConstant, rule.Kind)}
		}

		boundRules = append(boundRules, boundRule{name: ruleName, suffixes: rule.Suffixes, backend: ruleBackend})
	}

	return &Suite{filesystem: filesystem, rules: boundRules}, nil
}

// RuleFor returns the name of the first rule claiming the path. Suffix matching is case-sensitive.
func (suite *Suite) RuleFor(filePath string) (string, bool) {
	rule, matched := suite.match(filePath)
	if !matched {
		return "", false
	}
	return rule.name, true
}

// FormatInPlace formats a path relative to the suite root and reports whether its content changed.
func (suite *Suite) FormatInPlace(executionContext context.Context, filePath string) (bool, error) {
	rule, matched := suite.match(filePath)
	if !matched {
		return false, FormatterError{Rule: emptyRuleNameConstant, Path: filePath, Cause: ErrNoMatchingRule}
	}

	relativePath := path.Clean(filepath.ToSlash(filePath))
	original, readError := util.ReadFile(suite.filesystem, relativePath)
	if readError != nil {
		return false, FormatterError{Rule: rule.name, Path: filePath, Cause: readError}
	}

	formatted, formatError := rule.backend.format(executionContext, relativePath, original)
	if formatError != nil {
		return false, FormatterError{Rule: rule.name, Path: filePath, Cause: formatError}
	}

	if rule.backend.rewritesInPlace() {
		rewritten, rereadError := util.ReadFile(suite.filesystem, relativePath)
		if rereadError != nil {
			return false, FormatterError{Rule: rule.name, Path: filePath, Cause: rereadError}
		}
		return !bytes.Equal(original, rewritten), nil
	}

	if bytes.Equal(original, formatted) {
		return false, nil
	}
	if writeError := util.WriteFile(suite.filesystem, relativePath, formatted, formattedFilePermissionsConstant); writeError != nil {
		return false, FormatterError{Rule: rule.name, Path: filePath, Cause: writeError}
	}
	return true, nil
}

func (suite *Suite) match(filePath string) (boundRule, bool) {
	for _, rule := range suite.rules {
		for _, suffix := range rule.suffixes {
			if strings.HasSuffix(filePath, suffix) {
				return rule, true
			}
		}
	}
	return boundRule{}, false
}
