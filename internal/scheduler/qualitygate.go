package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// GateReport is the quality gate's verdict. The gate never errors: a broken
// toolchain is just another failure entry.
type GateReport struct {
	// Passed is true when every gate command succeeded.
	Passed bool

	// Failures describe the commands that failed, one entry per command.
	Failures []string
}

// QualityGate checks a workspace after a completed developer-role step.
type QualityGate interface {
	Check(ctx context.Context, workspacePath string) GateReport
}

// gateCommand is one stack-specific check.
type gateCommand struct {
	name string
	args []string
}

// CommandGate detects the workspace stack via root markers and runs the
// matching lint/build/test bundle as subprocesses.
type CommandGate struct {
	logger zerolog.Logger
}

// NewCommandGate returns the production quality gate.
func NewCommandGate(logger zerolog.Logger) *CommandGate {
	return &CommandGate{logger: logger.With().Str("component", "quality_gate").Logger()}
}

// Check runs the stack-appropriate commands and collects failures. A
// workspace with no recognised stack markers passes trivially.
func (g *CommandGate) Check(ctx context.Context, workspacePath string) GateReport {
	commands := g.commandsFor(workspacePath)
	if len(commands) == 0 {
		return GateReport{Passed: true}
	}

	var failures []string
	for _, c := range commands {
		if err := g.runCommand(ctx, workspacePath, c); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return GateReport{Passed: len(failures) == 0, Failures: failures}
}

// commandsFor maps workspace root markers to gate commands.
func (g *CommandGate) commandsFor(workspacePath string) []gateCommand {
	if fileExists(filepath.Join(workspacePath, "package.json")) {
		return []gateCommand{
			{name: "npm", args: []string{"run", "--if-present", "lint"}},
			{name: "npm", args: []string{"run", "--if-present", "build"}},
			{name: "npm", args: []string{"test", "--if-present"}},
		}
	}
	if fileExists(filepath.Join(workspacePath, "go.mod")) {
		return []gateCommand{
			{name: "go", args: []string{"build", "./..."}},
			{name: "go", args: []string{"vet", "./..."}},
			{name: "go", args: []string{"test", "./..."}},
		}
	}
	return nil
}

// runCommand executes one gate command, returning a descriptive error on
// failure.
func (g *CommandGate) runCommand(ctx context.Context, workDir string, c gateCommand) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...) //#nosec G204 -- commands come from the fixed tables above
	cmd.Dir = workDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		desc := fmt.Sprintf("%s %s: %s", c.name, strings.Join(c.args, " "), tail(output.String(), 500))
		g.logger.Debug().Str("command", c.name).Msg("gate command failed")
		return fmt.Errorf("%s", desc)
	}
	return nil
}

// tail returns the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
