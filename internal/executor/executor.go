// internal/executor/executor.go

// Package executor runs one external script per command and translates
// its output into reply frames using the stdout line convention:
//
//	STATUS_JSON:<json>    -> agent-status-update reply
//	EVENT_PAYLOAD:<json>  -> event envelope, forwarded as-is
//	anything else         -> log reply, line verbatim
//
// Two designated scripts are treated as raw-output: their entire stdout
// is emitted as a single log reply with no line-level parsing.
package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"nodeagent/internal/metrics"
	"nodeagent/internal/protocol"
)

// Designated script names with special handling.
const (
	// ScriptBulkCreate is the only script that receives stdin data, and
	// only when the command carries both stdin_data and arguments.
	ScriptBulkCreate = "bulk-create-proxies.sh"

	// Raw-output scripts: stdout is reported as one log frame.
	ScriptListProxies   = "list-proxies.sh"
	ScriptExportProxies = "export-proxies.sh"
)

// Stdout classification prefixes.
const (
	statusPrefix = "STATUS_JSON:"
	eventPrefix  = "EVENT_PAYLOAD:"
)

const defaultShell = "/bin/sh"

// Reporter receives the classified results of an execution.
type Reporter interface {
	Report(reply protocol.Reply)
	Forward(env protocol.Envelope)
}

// Executor spawns scripts through a shell, resolved relative to the
// configured working directory. There are no retries, no cancellation
// and no timeout: a failed spawn or non-zero exit is reported, not
// retried, and a hung script hangs its command indefinitely. Retry
// policy belongs to the server.
type Executor struct {
	workDir  string
	agentID  string
	shell    string
	reporter Reporter
}

// New creates an executor. workDir is the directory scripts are
// resolved against and run in.
func New(workDir, agentID string, reporter Reporter) *Executor {
	return &Executor{
		workDir:  workDir,
		agentID:  agentID,
		shell:    defaultShell,
		reporter: reporter,
	}
}

// Execute runs the command's script to completion and reports results
// scoped by the command id. Terminal outcomes are exactly one of:
// status "error" (spawn failure) or status "completed" (process exit,
// any exit code).
func (e *Executor) Execute(cmd protocol.Command) {
	sh := exec.Command(e.shell, "-c", e.commandLine(cmd))
	sh.Dir = e.workDir

	var stdout bytes.Buffer
	sh.Stdout = &stdout
	// stderr is drained but never parsed; its effect, if any, surfaces
	// through the exit code.
	var stderr bytes.Buffer
	sh.Stderr = &stderr

	stdin, err := sh.StdinPipe()
	if err != nil {
		e.reportSpawnFailure(cmd.ID, err)
		return
	}

	if err := sh.Start(); err != nil {
		stdin.Close()
		e.reportSpawnFailure(cmd.ID, err)
		return
	}

	log.Printf("[Executor] Started script %s for command %s (pid %d)", cmd.Script, cmd.ID, sh.Process.Pid)

	// Only the designated bulk-input script gets stdin, and only when
	// the command carries both data and arguments. The stream is closed
	// either way so every child sees end-of-input.
	if len(cmd.StdinData) > 0 && cmd.Script == ScriptBulkCreate && len(cmd.Args) > 0 {
		if _, err := stdin.Write([]byte(strings.Join(cmd.StdinData, "\n"))); err != nil {
			log.Printf("[Executor] Failed to write stdin for command %s: %v", cmd.ID, err)
		}
	}
	stdin.Close()

	waitErr := sh.Wait()

	// Output is processed as a block after end-of-output, before the
	// terminal status frame.
	e.processOutput(cmd, stdout.String())

	exitCode := extractExitCode(waitErr)
	log.Printf("[Executor] Script %s for command %s exited with code %d", cmd.Script, cmd.ID, exitCode)

	metrics.CommandsCompleted.Inc()
	e.reporter.Report(protocol.NewCompletedStatus(cmd.ID, exitCode))
}

// commandLine builds the shell command line: the script path resolved
// against the working directory, followed by its arguments.
func (e *Executor) commandLine(cmd protocol.Command) string {
	script := cmd.Script
	if !strings.HasPrefix(script, "/") {
		script = "./" + script
	}

	parts := append([]string{script}, cmd.Args...)
	return strings.Join(parts, " ")
}

// reportSpawnFailure emits the single terminal error reply. No
// "completed" frame follows a spawn failure.
func (e *Executor) reportSpawnFailure(commandID string, err error) {
	log.Printf("[Executor] Failed to start script for command %s: %v", commandID, err)
	metrics.CommandFailures.Inc()
	e.reporter.Report(protocol.NewErrorStatus(commandID, fmt.Sprintf("failed to start script: %v", err)))
}

// processOutput classifies the accumulated stdout of a finished
// process. Raw-output scripts produce exactly one log reply with the
// trimmed output; everything else is parsed line by line.
func (e *Executor) processOutput(cmd protocol.Command, output string) {
	if cmd.Script == ScriptListProxies || cmd.Script == ScriptExportProxies {
		e.reporter.Report(protocol.NewLog(cmd.ID, strings.TrimSpace(output)))
		return
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e.processLine(cmd, line)
	}
}

// processLine classifies one non-blank stdout line. Malformed JSON in a
// prefixed line is logged and the line dropped; later lines are still
// processed.
func (e *Executor) processLine(cmd protocol.Command, line string) {
	switch {
	case strings.HasPrefix(line, statusPrefix):
		raw := strings.TrimSpace(strings.TrimPrefix(line, statusPrefix))
		if !json.Valid([]byte(raw)) {
			log.Printf("[Executor] Malformed STATUS_JSON line for command %s, dropping: %s", cmd.ID, raw)
			return
		}
		e.reporter.Report(protocol.NewAgentStatusUpdate(cmd.ID, json.RawMessage(raw)))

	case strings.HasPrefix(line, eventPrefix):
		raw := strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
		if !json.Valid([]byte(raw)) {
			log.Printf("[Executor] Malformed EVENT_PAYLOAD line for command %s, dropping: %s", cmd.ID, raw)
			return
		}

		// Bulk-created entries carry the id of the command that
		// originally requested them; pass it through so the server can
		// correlate.
		eventID := cmd.ID
		var probe struct {
			OriginalCommandID string `json:"originalCommandId"`
		}
		if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.OriginalCommandID != "" {
			eventID = probe.OriginalCommandID
		}

		e.reporter.Forward(protocol.NewEventEnvelope(e.agentID, eventID, json.RawMessage(raw)))

	default:
		e.reporter.Report(protocol.NewLog(cmd.ID, line))
	}
}

// extractExitCode maps a Wait error to the process exit code. A nil
// error is exit 0; a non-zero exit is not an error here, merely data
// for the server to interpret.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	// Wait failed for a reason other than the process exiting.
	return 1
}
