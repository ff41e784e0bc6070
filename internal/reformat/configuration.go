package reformat

import (
	"strings"

	"github.com/tyemirov/branchfmt/internal/formatter"
)

// DefaultBranchSuffix is appended to the current branch name to name the migrated branch.
const DefaultBranchSuffix = "-reformatted"

// CommandConfiguration captures persisted configuration for reformat-branch.
type CommandConfiguration struct {
	BranchSuffix string                        `mapstructure:"branch_suffix"`
	Formatters   []formatter.RuleConfiguration `mapstructure:"formatters"`
}

// DefaultCommandConfiguration returns the clang-format setup with the default suffix.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		BranchSuffix: DefaultBranchSuffix,
		Formatters:   formatter.DefaultRules(),
	}
}

// Sanitize trims configured values and restores defaults for empty settings.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.BranchSuffix = strings.TrimSpace(configuration.BranchSuffix)
	if len(sanitized.BranchSuffix) == 0 {
		sanitized.BranchSuffix = DefaultBranchSuffix
	}

	sanitized.Formatters = formatter.SanitizeRules(configuration.Formatters)
	if len(sanitized.Formatters) == 0 {
		sanitized.Formatters = formatter.DefaultRules()
	}
	return sanitized
}
