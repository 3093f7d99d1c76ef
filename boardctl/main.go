package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-board/client/httpclient"
	"prism-board/client/progress"
	"prism-board/client/realtime"
	"prism-board/client/workspace"
	"prism-board/domain"
	"prism-board/internal/auth"
	"prism-board/internal/env"
)

type app struct {
	configPath string
	overrides  Config
	yes        bool
	cfg        Config
}

func main() {
	env.ConfigureLogging()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	home, _ := os.UserHomeDir()
	defaultPath := filepath.Join(home, ".boardctl.yaml")

	cmd := &cobra.Command{
		Use:          "boardctl",
		Short:        "Inspect and edit collaborative boards",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			a.cfg = merge(cfg, a.overrides)
			if a.cfg.Project == "" {
				return fmt.Errorf("%w: no project configured", domain.ErrInvalid)
			}
			return nil
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", defaultPath, "config file")
	f.StringVar(&a.overrides.APIURL, "api", "", "board API base URL")
	f.StringVar(&a.overrides.StreamURL, "stream", "", "stream service WebSocket URL")
	f.StringVar(&a.overrides.Token, "token", "", "bearer token")
	f.StringVarP(&a.overrides.Project, "project", "p", "", "project id")
	f.BoolVarP(&a.yes, "yes", "y", false, "do not ask before destructive actions")

	cmd.AddCommand(
		a.progressCmd(),
		a.watchCmd(),
		a.addColumnCmd(),
		a.placeCmd(),
		a.moveItemCmd(),
		a.moveColumnCmd(),
		a.deleteColumnCmd(),
		a.deleteItemCmd(),
		tokenCmd(),
	)
	return cmd
}

func merge(base, over Config) Config {
	if over.APIURL != "" {
		base.APIURL = over.APIURL
	}
	if over.StreamURL != "" {
		base.StreamURL = over.StreamURL
	}
	if over.Token != "" {
		base.Token = over.Token
	}
	if over.Project != "" {
		base.Project = over.Project
	}
	return base
}

func (a *app) client() *httpclient.Client {
	return httpclient.New(a.cfg.APIURL, a.cfg.Token)
}

func (a *app) open(cmd *cobra.Command, bus *realtime.Bus) (*workspace.Workspace, error) {
	return workspace.Open(cmd.Context(), workspace.Config{
		ProjectID: a.cfg.Project,
		API:       a.client(),
		Bus:       bus,
		Confirmer: a.confirmer(cmd.InOrStdin(), cmd.ErrOrStderr()),
		Logger:    log.StandardLogger(),
	})
}

func (a *app) confirmer(in io.Reader, out io.Writer) workspace.ConfirmFunc {
	return func(_ context.Context, prompt string) bool {
		if a.yes {
			return true
		}
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func (a *app) progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Print the project's completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.open(cmd, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			printReport(cmd.OutOrStdout(), w.Progress())
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the project's completion live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			bus := realtime.NewBus(realtime.WSDialer{URL: a.cfg.StreamURL})
			defer bus.Close()
			w, err := a.open(cmd, bus)
			if err != nil {
				return err
			}
			defer w.Close()

			cancel := w.WatchProgress(aggregatePrinter(cmd.OutOrStdout()))
			defer cancel()
			// Connect only after the first report so bus events cannot
			// interleave with it.
			bus.SetCredentials(a.cfg.Token)
			<-ctx.Done()
			return nil
		},
	}
}

func (a *app) addColumnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-column <name>",
		Short: "Append a column to the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := a.client().CreateColumn(cmd.Context(), domain.CreateColumnRequest{ProjectID: a.cfg.Project, Name: args[0]})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), col.ID)
			return nil
		},
	}
}

func (a *app) placeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place <task-id> [column-id]",
		Short: "Put a task on the board, in the first column unless one is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.PlaceItemRequest{TaskID: args[0], ProjectID: a.cfg.Project}
			if len(args) == 2 {
				req.ColumnID = args[1]
			}
			it, err := a.client().PlaceItem(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), it.ID)
			return nil
		},
	}
}

func (a *app) moveItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move-item <item-id> <column-id> <index>",
		Short: "Move an item to a position in a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%w: index %q", domain.ErrInvalid, args[2])
			}
			return a.client().MoveItem(cmd.Context(), domain.MoveItemRequest{
				ItemID:      args[0],
				NewColumnID: args[1],
				NewOrder:    index,
				IntentID:    uuid.NewString(),
			})
		},
	}
}

func (a *app) moveColumnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move-column <column-id> <index>",
		Short: "Move a column to a position on the board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: index %q", domain.ErrInvalid, args[1])
			}
			return a.client().MoveColumn(cmd.Context(), domain.MoveColumnRequest{
				ColumnID: args[0],
				NewOrder: index,
				IntentID: uuid.NewString(),
			})
		},
	}
}

func (a *app) deleteColumnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-column <column-id>",
		Short: "Delete a column and every item in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.open(cmd, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			return w.DeleteColumn(cmd.Context(), args[0])
		},
	}
}

func (a *app) deleteItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-item <item-id>",
		Short: "Take an item off the board, keeping its task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.open(cmd, nil)
			if err != nil {
				return err
			}
			defer w.Close()
			return w.DeleteItem(cmd.Context(), args[0])
		},
	}
}

// tokenCmd mints a token for services running in a local auth mode.
func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a token for LOCAL_AUTH_MODE=hs256 or AUTH0_TEST_MODE",
		Args:  cobra.ExactArgs(1),
		// Needs no project or config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.SignLocal(auth.LocalSecret(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// aggregatePrinter writes the aggregate percentage each time it changes.
func aggregatePrinter(out io.Writer) func(progress.Report) {
	var mu sync.Mutex
	last := -1
	return func(r progress.Report) {
		mu.Lock()
		defer mu.Unlock()
		if r.Aggregate == last {
			return
		}
		last = r.Aggregate
		fmt.Fprintf(out, "%d%%\n", r.Aggregate)
	}
}

func printReport(out io.Writer, r progress.Report) {
	fmt.Fprintf(out, "progress: %d%%\n", r.Aggregate)
	for _, bucket := range []struct {
		name  string
		nodes []progress.Node
	}{
		{"not started", r.NotStarted},
		{"in progress", r.InProgress},
		{"closed", r.Closed},
	} {
		fmt.Fprintf(out, "%s (%d)\n", bucket.name, len(bucket.nodes))
		for _, n := range bucket.nodes {
			fmt.Fprintf(out, "  %3.0f%%  %s\n", n.Progress, n.Task.Title)
		}
	}
}
