package shell

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storefront/client/internal/app"
	"storefront/client/internal/inactivity"
)

func (s *Shell) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withApp(cmd.Context(), app.Deps{}, func(a *app.App) error {
				a.Session.LoadFromStorage(cmd.Context())
				a.Session.Wait()
				s.printf("%s\n", describe(a.Session.State()))
				return nil
			})
		},
	}
}

func (s *Shell) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear its local data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withApp(cmd.Context(), app.Deps{}, func(a *app.App) error {
				sess, ok := a.Session.LoadFromStorage(cmd.Context())
				a.Logout(cmd.Context(), func() {
					if ok {
						s.printf("Signed out %s.\n", sess.Profile.Email)
					} else {
						s.printf("Not signed in.\n")
					}
				})
				return nil
			})
		},
	}
}

func (s *Shell) watchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session open while there is activity on stdin",
		Long: `watch keeps the stored session under the inactivity monitor. Every line on
stdin counts as activity; "k" answers the expiry warning. When the countdown
runs out the session is ended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expired := make(chan struct{}, 1)
			deps := app.Deps{MonitorOptions: []inactivity.Option{
				inactivity.OnWarning(func(left time.Duration) {
					s.printf("No activity: signing out in %s unless you press k.\n", left.Round(time.Second))
				}),
				inactivity.OnTick(func(left time.Duration) {
					s.printf("  %ds\n", int((left+time.Second-1)/time.Second))
				}),
				inactivity.OnExpired(func() {
					select {
					case expired <- struct{}{}:
					default:
					}
				}),
			}}
			return s.withApp(cmd.Context(), deps, func(a *app.App) error {
				return s.watch(cmd.Context(), a, interval, expired)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", inactivity.DefaultInterval, "Monitor tick interval")
	return cmd
}

func (s *Shell) watch(ctx context.Context, a *app.App, interval time.Duration, expired <-chan struct{}) error {
	if _, ok := a.Session.LoadFromStorage(ctx); !ok {
		s.printf("Not signed in.\n")
		return nil
	}
	s.printf("%s Watching for activity.\n", describe(a.Session.State()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = inactivity.NewRunner(a.Monitor, interval).Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				s.printf("Input closed; session left open.\n")
				return nil
			}
			warning := a.Monitor.State() == inactivity.StateWarning
			if strings.EqualFold(line, "k") {
				a.Monitor.KeepAlive()
			} else {
				a.Monitor.Touch()
			}
			if warning {
				s.printf("Still signed in.\n")
			}
		case <-expired:
			s.printf("%s\n", describe(a.Session.State()))
			return nil
		case <-ctx.Done():
			return fmt.Errorf("watch: %w", ctx.Err())
		}
	}
}
