// Package persona resolves the system prompt used for every chat.
package persona

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	FileName = "PERSONA.md"
	Default  = "You are Fennec, a local-first assistant that answers questions.\n\nBehavior guidelines:\n- Answer directly when you already know the answer.\n- Use the web_search tool for recent events, prices, releases, or anything you are unsure about, then cite what the results say.\n- If search results are empty or contradictory, say so instead of guessing.\n- Be concise and factual; prefer short paragraphs over long essays.\n- Never invent URLs or quotes that did not appear in search results."
)

// Resolve returns the persona from the nearest PERSONA.md, falling back to
// the built-in default.
func Resolve() string {
	content, err := ReadFromDisk()
	if err != nil || content == "" {
		return Default
	}
	return content
}

// ReadFromDisk returns the contents of the nearest PERSONA.md, walking up
// from the working directory.
func ReadFromDisk() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	path, err := findInParents(cwd, FileName)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func findInParents(startDir string, filename string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
