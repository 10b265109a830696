package lighthouse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts Options

		want []string
	}{
		"Mobile page load": {
			opts: Options{LoadPage: true, Mobile: true, Port: 9222},
			want: []string{"https://a.b", "--output=json", "--output-path=stdout", "--quiet", "--only-categories=performance", "--port=9222", "--chrome-flags=--headless"},
		},
		"Desktop": {
			opts: Options{LoadPage: true, Port: 9333},
			want: []string{"https://a.b", "--output=json", "--output-path=stdout", "--quiet", "--only-categories=performance", "--port=9333", "--preset=desktop", "--chrome-flags=--headless"},
		},
		"Audit mode with default port": {
			opts: Options{Mobile: true},
			want: []string{"https://a.b", "--output=json", "--output-path=stdout", "--quiet", "--only-categories=performance", "--port=9222", "-A"},
		},
		"Desktop audit mode does not start Chrome": {
			opts: Options{Port: 9333},
			want: []string{"https://a.b", "--output=json", "--output-path=stdout", "--quiet", "--only-categories=performance", "--port=9333", "--preset=desktop", "-A"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, buildArgs("https://a.b", tc.opts))
		})
	}
}

// fakeLighthouse writes an executable shell script standing in for the CLI.
func fakeLighthouse(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}

	p := filepath.Join(t.TempDir(), "lighthouse")
	err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o700)
	require.NoError(t, err, "Setup: could not write fake lighthouse")
	return p
}

func TestRunnerAudit(t *testing.T) {
	t.Parallel()

	fixture, err := filepath.Abs(filepath.Join("testdata", "current.json"))
	require.NoError(t, err)

	r := NewRunner(fakeLighthouse(t, `cat "`+fixture+`"`))
	res, err := r.Audit(context.Background(), "http://www.fake.dom/", Options{LoadPage: true, Mobile: true})
	require.NoError(t, err)

	want, err := os.ReadFile(fixture)
	require.NoError(t, err)
	require.Equal(t, want, res.Raw, "raw report should be kept as produced")
	require.Equal(t, "http://www.fake.dom/", res.Response.RequestedURL)
	require.Len(t, res.Response.Audits, 3)
}

func TestRunnerAuditFailures(t *testing.T) {
	t.Parallel()

	t.Run("Non zero exit", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(fakeLighthouse(t, `echo "Unable to connect to Chrome" >&2; exit 1`))
		_, err := r.Audit(context.Background(), "http://www.fake.dom/", Options{})
		require.ErrorIs(t, err, ErrAuditFailed)
		require.ErrorContains(t, err, "Unable to connect to Chrome", "stderr should be surfaced")
	})

	t.Run("Invalid report", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(fakeLighthouse(t, `echo "not json"`))
		_, err := r.Audit(context.Background(), "http://www.fake.dom/", Options{})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrAuditFailed)
	})

	t.Run("Timeout", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(fakeLighthouse(t, `exec sleep 10`))
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		_, err := r.Audit(ctx, "http://www.fake.dom/", Options{})
		require.True(t, errors.Is(err, context.DeadlineExceeded), "timeout should surface as the context error, got %v", err)
	})

	t.Run("Missing binary", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(filepath.Join(t.TempDir(), "does-not-exist"))
		_, err := r.Audit(context.Background(), "http://www.fake.dom/", Options{})
		require.ErrorIs(t, err, ErrAuditFailed)
	})
}

func TestNewRunnerDefaultsBinary(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultBinary, NewRunner("").Binary)
}
