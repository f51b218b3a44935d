package util

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// EscapeFileName escapes each part of the input path and makes it suitable to be used in a filename.
// The returned path is cleaned (which means it is separated using filepath.Separator, regardless of
// if the input path used slashes or filepath.Separator).
func EscapeFileName(path string) string {
	var (
		encoded string
		parts   = strings.Split(filepath.Clean(path), string(filepath.Separator))
	)
	for _, part := range parts {
		enc := url.QueryEscape(part)
		if encoded == "" {
			encoded = enc
		} else {
			encoded = filepath.Join(encoded, enc)
		}
	}
	return encoded
}

// HomeifyPath expands a leading "~/" or "$HOME" in path to the current user's
// home directory.
func HomeifyPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error locating user home directory: %w", err)
		}
		target := ""
		if path[:2] == "~/" {
			target = "~/"
		}
		if strings.HasPrefix(path, "$HOME") {
			target = "$HOME"
		}
		return filepath.Join(home, path[len(target):]), nil
	}
	return path, nil
}
