package executor

import (
	"os"
	"os/exec"
	"path/filepath"
)

// wellKnownDirs supplements PATH lookup the way installers for these tools
// commonly land outside it ("a list of well-known
// installation directories"), grounded on the `claude` CLI discovery in
// 88lin-divinesense/ai/agents/runner/runner.go (`exec.LookPath("claude")`).
func wellKnownDirs() []string {
	home, _ := os.UserHomeDir()
	dirs := []string{"/usr/local/bin", "/opt/homebrew/bin"}
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
		)
	}
	return dirs
}

// Discover filters specs down to those resolvable on PATH or in a
// well-known install directory.
func Discover(specs []ToolSpec) []ToolSpec {
	var found []ToolSpec
	for _, spec := range specs {
		if _, err := exec.LookPath(spec.Binary); err == nil {
			found = append(found, spec)
			continue
		}
		if resolved, ok := resolveInWellKnownDir(spec.Binary); ok {
			spec.Binary = resolved
			found = append(found, spec)
		}
	}
	return found
}

func resolveInWellKnownDir(binary string) (string, bool) {
	for _, dir := range wellKnownDirs() {
		candidate := filepath.Join(dir, binary)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 != 0 {
			return candidate, true
		}
	}
	return "", false
}
