package formatter

import (
	"strings"
)

const (
	defaultRuleNameConstant    = "clang-format"
	defaultCommandConstant     = "clang-format"
	defaultInPlaceFlagConstant = "-i"
	defaultYAMLIndentConstant  = 2
	// PathPlaceholder is replaced with the file path in command arguments.
	PathPlaceholder = "{path}"
)

// Kind selects the implementation behind a formatter rule.
type Kind string

// Supported formatter kinds.
const (
	KindCommand   Kind = "command"
	KindGoImports Kind = "goimports"
	KindGoMod     Kind = "gomod"
	KindYAML      Kind = "yaml"
)

// RuleConfiguration describes one formatter and the file suffixes it owns.
type RuleConfiguration struct {
	Name       string   `mapstructure:"name"`
	Kind       Kind     `mapstructure:"kind"`
	Command    string   `mapstructure:"command"`
	Arguments  []string `mapstructure:"arguments"`
	Suffixes   []string `mapstructure:"suffixes"`
	Indent     int      `mapstructure:"indent"`
	FormatOnly bool     `mapstructure:"format_only"`
}

// DefaultRules returns the clang-format rule for C and C++ sources.
func DefaultRules() []RuleConfiguration {
	return []RuleConfiguration{
		{
			Name:      defaultRuleNameConstant,
			Kind:      KindCommand,
			Command:   defaultCommandConstant,
			Arguments: []string{defaultInPlaceFlagConstant},
			Suffixes:  []string{".h", ".cpp", ".c", ".cc"},
		},
	}
}

// Sanitize trims configured values, drops empty entries, and fills kind, name, and indentation defaults.
func (rule RuleConfiguration) Sanitize() RuleConfiguration {
	sanitized := rule
	sanitized.Name = strings.TrimSpace(rule.Name)
	sanitized.Kind = Kind(strings.ToLower(strings.TrimSpace(string(rule.Kind))))
	sanitized.Command = strings.TrimSpace(rule.Command)
	sanitized.Arguments = trimNonEmpty(rule.Arguments)
	sanitized.Suffixes = trimNonEmpty(rule.Suffixes)

	if len(sanitized.Kind) == 0 {
		sanitized.Kind = KindCommand
	}
	if len(sanitized.Name) == 0 {
		if sanitized.Kind == KindCommand {
			sanitized.Name = sanitized.Command
		} else {
			sanitized.Name = string(sanitized.Kind)
		}
	}
	if sanitized.Kind == KindYAML && sanitized.Indent <= 0 {
		sanitized.Indent = defaultYAMLIndentConstant
	}
	return sanitized
}

// SanitizeRules sanitizes every rule, preserving order.
func SanitizeRules(rules []RuleConfiguration) []RuleConfiguration {
	sanitized := make([]RuleConfiguration, 0, len(rules))
	for _, rule := range rules {
		sanitized = append(sanitized, rule.Sanitize())
	}
	return sanitized
}

func trimNonEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if candidate := strings.TrimSpace(value); len(candidate) > 0 {
			trimmed = append(trimmed, candidate)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}
	return trimmed
}
