// Package command refreshes the resolution cache by running an external
// program, typically a PowerShell pipeline of the form
//
//	Get-Content {input} | ForEach-Object { Get-ADObject ... } | Export-Csv {cache} -Append
//
// The program receives the identifiers one per line in a temporary file and
// on stdin and is expected to append resolved rows to the cache file itself.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mailanon/internal/directory/providers"
	"mailanon/internal/platform/logger"
)

const (
	ProviderID = "command"

	InputPlaceholder = "{input}"
	CachePlaceholder = "{cache}"

	// waitDelay bounds how long a cancelled command may keep its output
	// pipes open.
	waitDelay = 2 * time.Second
)

// Refresher runs the configured argv once per refresh.
type Refresher struct {
	args      []string
	cachePath string
	logger    *slog.Logger
}

type Option func(*Refresher)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(args []string, cachePath string, opts ...Option) (*Refresher, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, fmt.Errorf("command is required")
	}
	if cachePath == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	r := &Refresher{
		args:      append([]string(nil), args...),
		cachePath: cachePath,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Refresher) Refresh(ctx context.Context, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	list := strings.Join(identifiers, "\n") + "\n"

	input, err := os.CreateTemp(filepath.Dir(r.cachePath), "directory-refresh-*.txt")
	if err != nil {
		return providers.NewProviderError(providers.ErrorInternal, ProviderID, "create identifier file", err)
	}
	defer os.Remove(input.Name())
	if _, err := input.WriteString(list); err != nil {
		_ = input.Close()
		return providers.NewProviderError(providers.ErrorInternal, ProviderID, "write identifier file", err)
	}
	if err := input.Close(); err != nil {
		return providers.NewProviderError(providers.ErrorInternal, ProviderID, "close identifier file", err)
	}

	argv := expand(r.args, input.Name(), r.cachePath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(list)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	cmd.WaitDelay = waitDelay

	r.logger.Info("running directory refresh command", "command", argv[0], "identifiers", len(identifiers))
	if err := cmd.Run(); err != nil {
		return classify(ctx, err, strings.TrimSpace(stderr.String()))
	}
	r.logger.Debug("directory refresh command finished", "output", strings.TrimSpace(stderr.String()))
	return nil
}

func expand(args []string, input, cachePath string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, InputPlaceholder, input)
		out[i] = strings.ReplaceAll(a, CachePlaceholder, cachePath)
	}
	return out
}

func classify(ctx context.Context, err error, output string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return providers.NewProviderError(providers.ErrorTimeout, ProviderID, "refresh command interrupted", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := fmt.Sprintf("refresh command exited with status %d", exitErr.ExitCode())
		if output != "" {
			msg += ": " + output
		}
		return providers.NewProviderError(providers.ErrorProviderOutage, ProviderID, msg, err)
	}
	return providers.NewProviderError(providers.ErrorInternal, ProviderID, "start refresh command", err)
}
