package lighthouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/perfmatters/internal/logger"
)

// ErrAuditFailed is returned when the Lighthouse process exits unsuccessfully.
var ErrAuditFailed = errors.New("lighthouse audit failed")

const (
	// DefaultBinary is looked up on PATH when no binary is configured.
	DefaultBinary = "lighthouse"
	// DefaultPort is the Chrome remote debugging port used by the CLI.
	DefaultPort = 9222

	maxStderrTail = 2000
	// Chrome children may hold stdout open after Lighthouse is killed.
	waitDelay = 10 * time.Second
)

// Runner audits URLs by executing the Lighthouse CLI and reading its JSON
// report from stdout.
type Runner struct {
	// Binary is the path or name of the lighthouse executable.
	Binary string
	// ExtraArgs are appended to every invocation.
	ExtraArgs []string
}

// NewRunner creates a Runner for the given binary. An empty binary falls
// back to DefaultBinary.
func NewRunner(binary string) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{Binary: binary}
}

// Audit runs Lighthouse against url and decodes the produced report.
// Cancelling ctx kills the Lighthouse process.
func (r *Runner) Audit(ctx context.Context, url string, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	args := append(buildArgs(url, opts), r.ExtraArgs...)
	log.Debug().
		Str("binary", r.Binary).
		Strs("args", args).
		Msg("Running lighthouse")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("Audit: %s: %w", url, ctxErr)
		}
		return nil, fmt.Errorf("Audit: %s: %w: %v: %s", url, ErrAuditFailed, err, tail(stderr.String()))
	}

	raw := stdout.Bytes()
	res, shape, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("Audit: %s: %w", url, err)
	}

	log.Debug().
		Str("url", url).
		Str("shape", shape.String()).
		Str("lighthouse_version", res.LighthouseVersion).
		Int("audits", len(res.Audits)).
		Msg("Decoded lighthouse report")

	return &Result{Raw: raw, Response: res}, nil
}

func buildArgs(url string, opts Options) []string {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	args := []string{
		url,
		"--output=json",
		"--output-path=stdout",
		"--quiet",
		"--only-categories=performance",
		"--port=" + strconv.Itoa(port),
	}
	if !opts.Mobile {
		args = append(args, "--preset=desktop")
	}
	// Audit mode replays saved artifacts and never starts Chrome.
	if opts.LoadPage {
		args = append(args, "--chrome-flags=--headless")
	} else {
		args = append(args, "-A")
	}
	return args
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrTail {
		return s[len(s)-maxStderrTail:]
	}
	return s
}
