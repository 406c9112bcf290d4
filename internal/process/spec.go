package process

import (
	"os/exec"
	"strings"
)

// Spec describes an external program run by the panel: either the long-running
// gateway or a one-shot subcommand of the agent tool.
type Spec struct {
	Name    string   `json:"name"`
	Binary  string   `json:"binary"`
	Args    []string `json:"args"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// BuildCommand constructs an *exec.Cmd for s. Arguments are passed verbatim
// without a shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command(s.Binary, s.Args...)
}

// CommandLine renders the invocation for logs.
func (s Spec) CommandLine() string {
	if len(s.Args) == 0 {
		return s.Binary
	}
	return s.Binary + " " + strings.Join(s.Args, " ")
}
