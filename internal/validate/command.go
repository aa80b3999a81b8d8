package validate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/devflowhq/devflow/internal/config"
)

// maxFindings caps the diagnostic output carried forward from a failing
// gate. Tool output can be enormous; the leading portion carries the
// actionable diagnostics.
const maxFindings = 16 * 1024

// CommandGate runs an external command and passes when it exits zero.
type CommandGate struct {
	name    string
	command string
	args    []string
	dir     string
}

// NewCommandGate builds a gate that runs command with args in dir.
func NewCommandGate(name, dir, command string, args []string) *CommandGate {
	return &CommandGate{
		name:    name,
		command: command,
		args:    args,
		dir:     dir,
	}
}

// Name identifies the gate.
func (g *CommandGate) Name() string {
	return g.name
}

// Run executes the command. A non-zero exit fails the gate with the
// command's combined output as findings.
func (g *CommandGate) Run(ctx context.Context) (bool, string) {
	cmd := exec.CommandContext(ctx, g.command, g.args...)
	cmd.Dir = g.dir

	output, err := cmd.CombinedOutput()
	if err == nil {
		return true, ""
	}

	findings := strings.TrimSpace(string(output))
	if findings == "" {
		findings = err.Error()
	}
	if len(findings) > maxFindings {
		findings = findings[:maxFindings] + "\n... (output truncated)"
	}
	return false, findings
}

// FromConfig builds a pipeline of the enabled gates in cfg, running in dir.
// A disabled gate is absent entirely: it neither runs nor votes.
func FromConfig(dir string, cfg config.ValidationConfig) *Pipeline {
	var gates []Gate

	add := func(name string, gc config.GateConfig) {
		if !gc.Enabled || gc.Command == "" {
			return
		}
		gates = append(gates, NewCommandGate(name, dir, gc.Command, gc.Args))
	}

	add("lint", cfg.Lint)
	add("test", cfg.Test)
	add("security", cfg.Security)

	return NewPipeline(gates...)
}

// String describes the gate for logs.
func (g *CommandGate) String() string {
	return fmt.Sprintf("%s (%s %s)", g.name, g.command, strings.Join(g.args, " "))
}
