package deps

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"transphire/internal/config"
)

// Requirement names an external program a pipeline stage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries resolves every requirement on PATH (or as an absolute path).
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// ToolRequirements lists the executables of every tool referenced by an
// enabled transform stage. Stages switched to "Later" are optional: they may
// be turned on while the pipeline runs, but missing binaries do not block
// startup.
func ToolRequirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	byTool := make(map[string]*Requirement)
	for _, stg := range cfg.Stages {
		if stg.Kind != config.KindTransform || !cfg.StageEnabled(stg) {
			continue
		}
		tool, ok := cfg.Tools[stg.Tool]
		if !ok {
			continue
		}
		req, seen := byTool[stg.Tool]
		if !seen {
			req = &Requirement{
				Name:     stg.Tool,
				Command:  executableOf(tool),
				Optional: true,
			}
			byTool[stg.Tool] = req
		}
		if !cfg.StageDeferred(stg) {
			req.Optional = false
		}
		if req.Description == "" {
			req.Description = "used by " + stg.Name
		} else {
			req.Description += ", " + stg.Name
		}
	}

	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Requirement, 0, len(names))
	for _, name := range names {
		out = append(out, *byTool[name])
	}
	return out
}

// MissingRequired returns the statuses of unavailable, non-optional requirements.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

// executableOf returns the program a tool runs. Shell tools may carry a full
// command line in Executable; only its first word is looked up.
func executableOf(tool config.Tool) string {
	exe := strings.TrimSpace(tool.Executable)
	if tool.Shell {
		if fields := strings.Fields(exe); len(fields) > 0 {
			return fields[0]
		}
	}
	return exe
}
