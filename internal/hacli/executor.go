// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package hacli

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "hamcp/internal/errors"
)

// CommandResult reports a completed command run. A non-zero exit code is a
// successful result as far as the executor is concerned: the command ran,
// it just failed.
type CommandResult struct {
	Command    string `json:"command"`
	ReturnCode int    `json:"return_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Success    bool   `json:"success"`
	Truncated  bool   `json:"truncated"`
}

// Executor runs approved argument vectors as direct process invocations.
// No shell is ever involved: the tokens are passed verbatim to the OS, so
// metacharacters that slipped past the filter would still be inert.
type Executor struct {
	timeout   time.Duration
	maxOutput int64
	log       zerolog.Logger
}

// NewExecutor builds an executor with a hard deadline and an output budget.
func NewExecutor(timeout time.Duration, maxOutput int64, log zerolog.Logger) *Executor {
	return &Executor{
		timeout:   timeout,
		maxOutput: maxOutput,
		log:       log.With().Str("component", "hacli").Logger(),
	}
}

// Run executes tokens as a child process in its own process group, captures
// stdout and stderr up to the shared output budget, and kills the whole
// group when the deadline passes. The child is always reaped; no process
// outlives the call on any exit path.
func (e *Executor) Run(ctx context.Context, tokens []string) (*CommandResult, error) {
	if len(tokens) == 0 {
		return nil, errCommandNotAllowed()
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tokens[0], tokens[1:]...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateProcessGroup(cmd)
	}
	cmd.WaitDelay = 2 * time.Second

	budget := newOutputBudget(e.maxOutput)
	stdout := budget.writer()
	stderr := budget.writer()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		e.log.Warn().Str("argv0", tokens[0]).Dur("elapsed", elapsed).Msg("command timed out")
		return nil, apperrors.New(apperrors.CodeCommandTimeout,
			"command exceeded the execution deadline and was terminated")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &CommandResult{
		Command:   strings.Join(tokens, " "),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: budget.truncated(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
			e.log.Debug().Str("argv0", tokens[0]).Int("exit_code", result.ReturnCode).Msg("command exited non-zero")
			return result, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "failed to run command", err)
	}

	result.Success = true
	e.log.Debug().Str("argv0", tokens[0]).Dur("elapsed", elapsed).Msg("command completed")
	return result, nil
}

// outputBudget caps the combined bytes captured from stdout and stderr.
type outputBudget struct {
	mu        sync.Mutex
	remaining int64
	clipped   bool
}

func newOutputBudget(max int64) *outputBudget {
	return &outputBudget{remaining: max}
}

func (b *outputBudget) truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clipped
}

func (b *outputBudget) writer() *cappedBuffer {
	return &cappedBuffer{budget: b}
}

type cappedBuffer struct {
	budget *outputBudget
	data   []byte
}

// Write discards bytes beyond the shared budget but never errors, so the
// child keeps running to completion instead of dying on a broken pipe.
func (w *cappedBuffer) Write(p []byte) (int, error) {
	b := w.budget
	b.mu.Lock()
	defer b.mu.Unlock()

	n := int64(len(p))
	if b.remaining <= 0 {
		if n > 0 {
			b.clipped = true
		}
		return len(p), nil
	}
	if n > b.remaining {
		n = b.remaining
		b.clipped = true
	}
	w.data = append(w.data, p[:n]...)
	b.remaining -= n
	return len(p), nil
}

func (w *cappedBuffer) String() string {
	w.budget.mu.Lock()
	defer w.budget.mu.Unlock()
	return string(w.data)
}
