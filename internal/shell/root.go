// Package shell is the storefront command line: sign in with a one-time code,
// inspect or end the stored session, and watch for inactivity.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"storefront/client/internal/app"
	"storefront/client/internal/config"
)

// Opener builds the App for one command run.
type Opener func(ctx context.Context, deps app.Deps) (*app.App, error)

// OpenFromEnv loads config from the environment and logs to stderr.
func OpenFromEnv(ctx context.Context, deps app.Deps) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, os.Stderr, deps)
}

// Shell holds what the commands share.
type Shell struct {
	open   Opener
	prompt Prompter
	in     io.Reader
	out    *syncWriter
	plain  bool
}

// New returns a Shell. A nil prompt selects huh forms, or line prompts with --plain.
func New(open Opener, prompt Prompter, in io.Reader, out io.Writer) *Shell {
	return &Shell{open: open, prompt: prompt, in: in, out: &syncWriter{w: out}}
}

// Command returns the root command.
func (s *Shell) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Sign in to the storefront and manage the local session",
		Long: `storefront signs in with email, password and a one-time code, keeps the
session in local storage, and merges the guest cart and wishlist on sign-in.

Configuration comes from the environment or a .env file:
  IDENTITY_API_URL   identity backend (required)
  CART_API_URL       cart backend (default: IDENTITY_API_URL)
  STORAGE_BACKEND    file, redis or memory (default: file)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if s.prompt == nil {
				if s.plain {
					s.prompt = NewLinePrompter(s.in, s.out)
				} else {
					s.prompt = FormPrompter{}
				}
			}
		},
	}
	root.SetOut(s.out)
	root.SetErr(s.out)
	root.PersistentFlags().BoolVar(&s.plain, "plain", false, "Read answers line by line from stdin instead of interactive forms")

	root.AddCommand(
		s.loginCommand(),
		s.activateCommand(),
		s.whoamiCommand(),
		s.logoutCommand(),
		s.watchCommand(),
	)
	return root
}

// withApp opens the App, runs fn and closes it.
func (s *Shell) withApp(ctx context.Context, deps app.Deps, fn func(*app.App) error) error {
	a, err := s.open(ctx, deps)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.Log.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(a)
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

// syncWriter serializes writes from the monitor goroutine and the command.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
