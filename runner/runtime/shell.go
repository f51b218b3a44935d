package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

type OS string

const (
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSUnknown OS = "unknown"
)

// DefaultShellForHost returns the path of the default shell for the host
// operating system, or an error if the host OS is not supported.
func DefaultShellForHost(platform OS) (string, error) {
	switch platform {
	case OSWindows:
		return "C:\\Windows\\System32\\cmd.exe", nil
	case OSLinux, OSMacOS:
		return "/bin/sh", nil
	default:
		return "", fmt.Errorf("error unsupported OS: %s", platform)
	}
}

// ShellOrDefault returns shell if set, otherwise the default shell for the
// specified platform.
func ShellOrDefault(platform OS, shell string) (string, error) {
	if shell != "" {
		return shell, nil
	}
	return DefaultShellForHost(platform)
}

// GetHostOS returns the operating system this process is running on.
func GetHostOS() OS {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacOS
	case "linux":
		return OSLinux
	default:
		return OSUnknown
	}
}

// WriteScript writes the commands to an executable script file in dir and
// returns the path of the file.
func WriteScript(dir string, name string, commands []string) (string, error) {
	path := filepath.Join(dir, name)
	commandStr := strings.Join(commands, "\n")
	err := os.WriteFile(path, []byte(commandStr), 0755)
	if err != nil {
		return "", fmt.Errorf("error writing script: %w", err)
	}
	return path, nil
}
