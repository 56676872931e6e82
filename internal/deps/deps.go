package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an executable a worker unit or helper needs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional requirements are reported but never block startup.
	Optional bool
}

// Status is a Requirement plus the outcome of locating it.
type Status struct {
	Requirement
	Available bool
	Resolved  string
	Detail    string
}

// CheckBinaries locates every requirement. Commands with a path separator
// must name an executable file; bare names are searched in PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = Status{Requirement: req}
		resolved, err := locate(req.Command)
		if err != nil {
			results[i].Detail = err.Error()
			continue
		}
		results[i].Available = true
		results[i].Resolved = resolved
	}
	return results
}

func locate(command string) (string, error) {
	if command == "" {
		return "", errors.New("command not configured")
	}
	if !strings.ContainsRune(command, os.PathSeparator) {
		resolved, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("binary %q not found in PATH", command)
		}
		return resolved, nil
	}
	info, err := os.Stat(command)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%s does not exist", command)
	case err != nil:
		return "", fmt.Errorf("stat %s: %w", command, err)
	case info.IsDir():
		return "", fmt.Errorf("%s is a directory", command)
	case info.Mode().Perm()&0o111 == 0:
		return "", fmt.Errorf("%s is not executable", command)
	}
	return command, nil
}

// Missing returns the names of required entries that could not be located.
func Missing(statuses []Status) []string {
	var out []string
	for _, status := range statuses {
		if status.Optional || status.Available {
			continue
		}
		out = append(out, status.Name)
	}
	return out
}
