// Package ui provides terminal detection and styled rendering for the CLI.
//
// Rendering degrades in steps: styled output on interactive terminals,
// plain text when NO_COLOR is set or the output is piped, and no in-place
// progress at all in CI environments.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// InteractiveStdin reports whether stdin is attached to a terminal. MCP
// stdio mode refuses to start on a terminal stdin, since the protocol
// expects a client on the other end of the pipe.
func InteractiveStdin() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// DetectNoColor reports whether the NO_COLOR convention is in effect.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// InteractiveProgress reports whether in-place progress rendering makes
// sense for the writer: an interactive terminal outside CI.
func InteractiveProgress(w io.Writer) bool {
	return IsTTY(w) && !DetectCI()
}
