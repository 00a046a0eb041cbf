package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default prompt filenames. Each has an embedded fallback.
const (
	CandidatePromptFile = "candidate.txt"
	EvaluatePromptFile  = "evaluate.txt"
	RevisePromptFile    = "revise.txt"
)

// defaultPromptDir is the subdirectory within the user's home directory.
const defaultPromptDir = ".config/tagforge/prompts"

//go:embed prompts/*.txt
var builtinPrompts embed.FS

// LoadPromptContent resolves the path for a prompt template and reads its content.
// An absolute configuredPath is read directly and must exist. A relative or
// empty one names a file inside ~/.config/tagforge/prompts/; when that file is
// missing the built-in template for defaultFilename is returned.
func LoadPromptContent(configuredPath, defaultFilename string) (string, error) {
	if filepath.IsAbs(configuredPath) {
		b, err := os.ReadFile(configuredPath)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file '%s': %w", configuredPath, err)
		}
		return string(b), nil
	}

	filename := configuredPath
	if filename == "" {
		filename = defaultFilename
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		b, err := os.ReadFile(filepath.Join(homeDir, defaultPromptDir, filename))
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt file '%s': %w", filename, err)
		}
	}

	return BuiltinPrompt(defaultFilename)
}

// BuiltinPrompt returns the template shipped with the binary.
func BuiltinPrompt(name string) (string, error) {
	b, err := builtinPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", fmt.Errorf("no built-in prompt named '%s': %w", name, err)
	}
	return string(b), nil
}
