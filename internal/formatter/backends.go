package formatter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/imports"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/branchfmt/internal/execshell"
)

const (
	goImportsTabWidthConstant = 8
)

type commandBackend struct {
	executor         CommandExecutor
	command          execshell.CommandName
	arguments        []string
	workingDirectory string
}

func (formatterBackend commandBackend) format(executionContext context.Context, relativePath string, _ []byte) ([]byte, error) {
	commandArguments := expandArguments(formatterBackend.arguments, filepath.FromSlash(relativePath))
	_, executionError := formatterBackend.executor.Execute(executionContext, execshell.ShellCommand{
		Name: formatterBackend.command,
		Details: execshell.CommandDetails{
			Arguments:        commandArguments,
			WorkingDirectory: formatterBackend.workingDirectory,
		},
	})
	return nil, executionError
}

func (formatterBackend commandBackend) rewritesInPlace() bool {
	return true
}

// expandArguments substitutes PathPlaceholder, or appends the path when no argument mentions it.
func expandArguments(arguments []string, filePath string) []string {
	expanded := make([]string, 0, len(arguments)+1)
	substituted := false
	for _, argument := range arguments {
		if strings.Contains(argument, PathPlaceholder) {
			substituted = true
			expanded = append(expanded, strings.ReplaceAll(argument, PathPlaceholder, filePath))
			continue
		}
		expanded = append(expanded, argument)
	}
	if !substituted {
		expanded = append(expanded, filePath)
	}
	return expanded
}

type goImportsBackend struct {
	rootDirectory string
	formatOnly    bool
}

func (formatterBackend goImportsBackend) format(_ context.Context, relativePath string, original []byte) ([]byte, error) {
	return imports.Process(filepath.Join(formatterBackend.rootDirectory, filepath.FromSlash(relativePath)), original, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   goImportsTabWidthConstant,
		FormatOnly: formatterBackend.formatOnly,
	})
}

func (formatterBackend goImportsBackend) rewritesInPlace() bool {
	return false
}

type goModBackend struct{}

func (formatterBackend goModBackend) format(_ context.Context, relativePath string, original []byte) ([]byte, error) {
	parsed, parseError := modfile.Parse(relativePath, original, nil)
	if parseError != nil {
		return nil, parseError
	}
	parsed.Cleanup()
	return parsed.Format()
}

func (formatterBackend goModBackend) rewritesInPlace() bool {
	return false
}

type yamlBackend struct {
	indent int
}

func (formatterBackend yamlBackend) format(_ context.Context, _ string, original []byte) ([]byte, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(original))
	documents := make([]*yaml.Node, 0, 1)
	for {
		document := &yaml.Node{}
		decodeError := decoder.Decode(document)
		if errors.Is(decodeError, io.EOF) {
			break
		}
		if decodeError != nil {
			return nil, decodeError
		}
		documents = append(documents, document)
	}
	if len(documents) == 0 {
		return original, nil
	}

	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(formatterBackend.indent)
	for _, document := range documents {
		if encodeError := encoder.Encode(document); encodeError != nil {
			return nil, encodeError
		}
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, closeError
	}
	return buffer.Bytes(), nil
}

func (formatterBackend yamlBackend) rewritesInPlace() bool {
	return false
}
