package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds a single version probe.
const versionTimeout = 3 * time.Second

// Requirement defines an external binary mediasort can use.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the binary to report its version.
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Satisfied reports whether the dependency is present or not needed.
func (s Status) Satisfied() bool {
	return s.Available || s.Optional
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		if len(req.VersionArgs) > 0 {
			version, err := ProbeVersion(ctx, path, req.VersionArgs...)
			if err != nil {
				status.Detail = fmt.Sprintf("version probe failed: %v", err)
			}
			status.Version = version
		}
		results = append(results, status)
	}
	return results
}

// ProbeVersion runs command with args and returns the first non-empty line
// of its output.
func ProbeVersion(ctx context.Context, command string, args ...string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, command, args...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if probeCtx.Err() != nil {
		return "", probeCtx.Err()
	}
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", nil
}
