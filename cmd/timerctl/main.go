package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"focus-timer/internal/config"
	"focus-timer/internal/middleware"
	"focus-timer/internal/models"
	"focus-timer/internal/timer"
	"focus-timer/internal/timerclient"
	"focus-timer/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "timerctl",
		Short:         "Control your focus timer from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultClientConfigPath(), "client config file")

	root.AddCommand(newStartCmd(&configPath))
	root.AddCommand(newActionCmd(&configPath, "pause", "Pause the running session", func(ctx context.Context, s *timer.Store) error {
		return s.Pause(ctx)
	}))
	root.AddCommand(newActionCmd(&configPath, "resume", "Resume the paused session", func(ctx context.Context, s *timer.Store) error {
		return s.Resume(ctx)
	}))
	root.AddCommand(newStopCmd(&configPath))
	root.AddCommand(newActionCmd(&configPath, "discard", "Throw away the active session without recording it", func(ctx context.Context, s *timer.Store) error {
		return s.Discard(ctx)
	}))
	root.AddCommand(newActionCmd(&configPath, "status", "Show the active session", func(context.Context, *timer.Store) error {
		return nil
	}))
	root.AddCommand(newHistoryCmd(&configPath))
	root.AddCommand(newTodayCmd(&configPath))
	root.AddCommand(newWatchCmd(&configPath))
	root.AddCommand(newTokenCmd())
	return root
}

type session struct {
	cfg    *config.ClientConfig
	client *timerclient.Client
	store  *timer.Store
}

func openSession(configPath string) (*session, error) {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Token == "" {
		return nil, errors.New("no token configured: set TIMERCTL_TOKEN or token in " + configPath)
	}
	client := timerclient.New(cfg.ServerURL, cfg.Token, cfg.Timeout())
	return &session{cfg: cfg, client: client, store: timer.New(client)}, nil
}

// withStore reconciles against the server before running action.
func withStore(configPath string, action func(ctx context.Context, s *session) error) error {
	sess, err := openSession(configPath)
	if err != nil {
		return err
	}
	defer sess.store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*sess.cfg.Timeout())
	defer cancel()

	if err := sess.store.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	return action(ctx, sess)
}

func newStartCmd(configPath *string) *cobra.Command {
	var plan, project int64
	var title string
	var zen bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a focus session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := timer.StartOptions{Title: title, ZenMode: zen}
			if plan > 0 {
				opts.PlanID = &plan
			}
			if project > 0 {
				opts.ProjectID = &project
			}
			return withStore(*configPath, func(ctx context.Context, s *session) error {
				if err := s.store.Start(ctx, opts); err != nil {
					return explain(err)
				}
				printStatus(cmd.OutOrStdout(), s.store.Snapshot())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&plan, "plan", 0, "study plan id")
	cmd.Flags().Int64Var(&project, "project", 0, "project id")
	cmd.Flags().StringVarP(&title, "title", "t", "", "what you are working on")
	cmd.Flags().BoolVar(&zen, "zen", false, "zen mode")
	return cmd
}

func newStopCmd(configPath *string) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop and record the active session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(*configPath, func(ctx context.Context, s *session) error {
				if err := s.store.Stop(ctx, notes); err != nil {
					return explain(err)
				}
				snap := s.store.Snapshot()
				if len(snap.History) > 0 {
					printSession(cmd.OutOrStdout(), snap.History[0])
				}
				printToday(cmd.OutOrStdout(), snap.Today)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes to attach to the session")
	return cmd
}

func newActionCmd(configPath *string, use, short string, action func(context.Context, *timer.Store) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(*configPath, func(ctx context.Context, s *session) error {
				if err := action(ctx, s.store); err != nil {
					return explain(err)
				}
				printStatus(cmd.OutOrStdout(), s.store.Snapshot())
				return nil
			})
		},
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var plan, project int64
	var date string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := models.SessionFilter{Limit: limit}
			if plan > 0 {
				filter.PlanID = &plan
			}
			if project > 0 {
				filter.ProjectID = &project
			}
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				filter.Date = &d
			}

			return withStore(*configPath, func(ctx context.Context, s *session) error {
				sessions, err := s.store.FetchSessions(ctx, filter)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				}
				for _, ts := range sessions {
					printSession(cmd.OutOrStdout(), ts)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&plan, "plan", 0, "only sessions of this plan")
	cmd.Flags().Int64Var(&project, "project", 0, "only sessions of this project")
	cmd.Flags().StringVar(&date, "date", "", "only sessions started on this day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	return cmd
}

func newTodayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(*configPath, func(ctx context.Context, s *session) error {
				stats, err := s.store.FetchTodayStats(ctx)
				if err != nil {
					return err
				}
				printToday(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func newWatchCmd(configPath *string) *cobra.Command {
	var plan, project int64
	var zen bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the interactive timer",
		RunE: func(_ *cobra.Command, _ []string) error {
			sess, err := openSession(*configPath)
			if err != nil {
				return err
			}
			defer sess.store.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// The TUI works without live events, it just won't see other devices.
			events, err := sess.client.Subscribe(ctx)
			if err != nil {
				events = nil
			}

			opts := tui.Options{HistoryLimit: sess.cfg.HistoryLimit}
			opts.StartOptions.ZenMode = zen
			if plan > 0 {
				opts.StartOptions.PlanID = &plan
			}
			if project > 0 {
				opts.StartOptions.ProjectID = &project
			}

			p := tea.NewProgram(tui.NewModel(sess.store, events, opts), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().Int64Var(&plan, "plan", 0, "plan id for sessions started here")
	cmd.Flags().Int64Var(&project, "project", 0, "project id for sessions started here")
	cmd.Flags().BoolVar(&zen, "zen", false, "start sessions in zen mode")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var user, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}

			userID := uuid.New()
			if user != "" {
				parsed, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				userID = parsed
			}

			token, err := middleware.NewJWTAuth(secret).GenerateAccessToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func explain(err error) error {
	switch {
	case errors.Is(err, timer.ErrNotAllowed):
		return errors.New("that action is not possible in the current timer state")
	case errors.Is(err, timerclient.ErrConflict):
		return fmt.Errorf("conflict: %w", err)
	default:
		return err
	}
}

func printStatus(w io.Writer, snap timer.Snapshot) {
	if snap.Session == nil {
		fmt.Fprintln(w, "idle")
		return
	}
	line := fmt.Sprintf("%s  %s  session #%d", snap.State, snap.FormattedElapsed(), snap.Session.ID)
	if t := snap.Session.Title; t != nil {
		line += "  " + *t
	}
	fmt.Fprintln(w, line)
}

func printSession(w io.Writer, s models.TimerSession) {
	line := fmt.Sprintf("#%d  %s  %s", s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), timer.FormatElapsed(s.Duration))
	if s.Title != nil {
		line += "  " + *s.Title
	}
	if s.FocusScore != nil {
		line += fmt.Sprintf("  focus %.1f", *s.FocusScore)
	}
	if s.Notes != nil && *s.Notes != "" {
		line += "  " + *s.Notes
	}
	fmt.Fprintln(w, line)
}

func printToday(w io.Writer, stats models.TodayStats) {
	line := fmt.Sprintf("today: %s across %d session(s)", timer.FormatElapsed(stats.TotalDuration), stats.SessionCount)
	if stats.FocusScoreAvg != nil {
		line += fmt.Sprintf(", avg focus %.1f", *stats.FocusScoreAvg)
	}
	fmt.Fprintln(w, line)
}
