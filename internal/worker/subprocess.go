package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/domain"
)

// InterpreterResolver discovers the interpreter path for a subprocess
// worker, in priority order: explicit override, then local virtual
// environment, then system interpreter. It validates the resolved path
// on first use and caches the result behind a small resolver.
type InterpreterResolver struct {
	override string
	venvPath string
	system   string

	mu       sync.Mutex
	resolved string
	err      error
}

// NewInterpreterResolver builds a resolver. override and venvPath may be
// empty; system is the final fallback (e.g. "python3").
func NewInterpreterResolver(override, venvPath, system string) *InterpreterResolver {
	return &InterpreterResolver{override: override, venvPath: venvPath, system: system}
}

// Resolve returns the interpreter path, discovering and validating it on
// first call only.
func (r *InterpreterResolver) Resolve() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved != "" || r.err != nil {
		return r.resolved, r.err
	}

	candidates := []string{r.override, r.venvPath, r.system}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if path, ok := validateInterpreter(c); ok {
			r.resolved = path
			return r.resolved, nil
		}
	}
	r.err = apperr.New(apperr.KindWorkerError, "no interpreter found: checked override, venv, system")
	return "", r.err
}

func validateInterpreter(path string) (string, bool) {
	if filepath.IsAbs(path) || strings.Contains(path, string(os.PathSeparator)) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
		return "", false
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// SubprocessSpec describes how to invoke a managed subprocess worker.
type SubprocessSpec struct {
	Resolver        *InterpreterResolver
	ScriptPath      string
	Args            []string
	BaseTimeout     time.Duration
	WorkloadFactor  time.Duration
	CancelGraceMS   int
	WarningPrefixes []string
}

// SubprocessWorker runs a pipeline's script as a child process,
// exchanging a JSON envelope over stdin/stdout.
type SubprocessWorker struct {
	spec SubprocessSpec
}

// NewSubprocessWorker builds a Worker backed by spec.
func NewSubprocessWorker(spec SubprocessSpec) *SubprocessWorker {
	if len(spec.WarningPrefixes) == 0 {
		spec.WarningPrefixes = []string{"WARNING:", "WARN:"}
	}
	return &SubprocessWorker{spec: spec}
}

// Run implements domain.Worker.
func (w *SubprocessWorker) Run(ctx context.Context, job *domain.Job, sink domain.ProgressSink) (domain.JSONBlob, error) {
	interpreter, err := w.spec.Resolver.Resolve()
	if err != nil {
		return nil, err
	}

	timeout := w.spec.BaseTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{w.spec.ScriptPath}, w.spec.Args...)
	// Termination on timeout/cancel is left to waitWithGrace (SIGTERM, then
	// SIGKILL after the grace period); WaitDelay keeps Wait from blocking on
	// output pipes still held open by children of a killed process.
	cmd := exec.Command(interpreter, args...)
	cmd.WaitDelay = time.Second

	stdin, err := stdinPayload(job)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "encode worker stdin", err)
	}
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindWorkerError, "attach stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, apperr.Wrap(apperr.KindWorkerError, "start subprocess", err)
	}

	var stderrWG sync.WaitGroup
	stderrWG.Add(1)
	go func() {
		defer stderrWG.Done()
		w.streamStderr(stderrPipe, sink)
	}()

	waitErr := w.waitWithGrace(runCtx, cmd)
	stderrWG.Wait()

	return w.classify(job, stdout.Bytes(), waitErr, runCtx)
}

// streamStderr scans stderr line by line, raising a warn progress event
// for any line carrying one of the configured warning prefixes.
func (w *SubprocessWorker) streamStderr(r io.Reader, sink domain.ProgressSink) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for _, prefix := range w.spec.WarningPrefixes {
			if strings.HasPrefix(strings.TrimSpace(line), prefix) {
				sink.Warn(line)
				break
			}
		}
	}
}

// waitWithGrace waits for cmd to exit; on context cancellation/timeout it
// sends SIGTERM and escalates to SIGKILL after CancelGraceMS if the
// process has not exited.
func (w *SubprocessWorker) waitWithGrace(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		grace := time.Duration(w.spec.CancelGraceMS) * time.Millisecond
		if grace == 0 {
			grace = 5 * time.Second
		}
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			return <-done
		}
	}
}

// classify turns the process exit outcome into a (result, error) pair
// using the exit code, signal, and parsed stdout.
func (w *SubprocessWorker) classify(job *domain.Job, stdout []byte, waitErr error, ctx context.Context) (domain.JSONBlob, error) {
	parsed, parseErr := parseResult(stdout)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		// Exit 0.
		if parseErr != nil {
			return nil, apperr.New(apperr.KindOutputParse, "worker exited 0 with unparseable stdout")
		}
		return parsed, nil

	case errors.As(waitErr, &exitErr):
		if exitErr.ProcessState != nil {
			if status, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				// Signal termination (e.g. our own SIGTERM on timeout/cancel).
				if parseErr == nil {
					return parsed, nil
				}
				if ctx.Err() != nil {
					return nil, apperr.New(apperr.KindRetryable, "subprocess terminated by signal before producing output")
				}
				return nil, apperr.New(apperr.KindRetryable, "subprocess signalled: "+status.Signal().String())
			}
		}
		// Non-zero exit: always a non-retryable WorkerError. Stderr content
		// (already streamed to the event sink) is not used to classify it.
		return nil, apperr.Wrap(apperr.KindWorkerError, "worker exited non-zero", waitErr)

	default:
		return nil, apperr.Wrap(apperr.KindRetryable, "subprocess wait failed", waitErr)
	}
}

func stdinPayload(job *domain.Job) ([]byte, error) {
	envelope := map[string]any{
		"data": json.RawMessage(job.Data),
		"env": map[string]string{
			"job_id":      job.ID,
			"pipeline_id": job.PipelineID,
		},
	}
	return json.Marshal(envelope)
}

func parseResult(stdout []byte) (domain.JSONBlob, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 {
		return nil, apperr.New(apperr.KindOutputParse, "empty stdout")
	}
	if !json.Valid(trimmed) {
		return nil, apperr.New(apperr.KindOutputParse, "stdout is not valid JSON")
	}
	return domain.JSONBlob(trimmed), nil
}
