// Package cli implements the taskctl commands on top of the client package.
package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/biosecret/go-tasks/client"
)

// API is everything taskctl needs from the server.
type API interface {
	client.TaskAPI
	client.AuthAPI
}

type Dependencies struct {
	API    API
	Tokens client.TokenStore
	// Timeout bounds a whole command. Zero means no extra deadline.
	Timeout time.Duration
}

var errNotLoggedIn = errors.New("not logged in, run: taskctl login")

// RootCommand is the taskctl command tree bound to one session.
type RootCommand struct {
	cmd       *cobra.Command
	session   *client.Session
	cache     *client.TaskCache
	selection *client.Selection
	timeout   time.Duration
}

func NewRootCommand(deps Dependencies) *RootCommand {
	cache := client.NewTaskCache(deps.API)
	root := &RootCommand{
		session:   client.NewSession(deps.API, deps.Tokens),
		cache:     cache,
		selection: client.NewSelection(deps.API, cache),
		timeout:   deps.Timeout,
	}

	root.cmd = &cobra.Command{
		Use:   "taskctl",
		Short: "Manage your tasks from the command line",
		Long: `taskctl talks to a go-tasks server.

EXAMPLES:
  taskctl register --name Alice --email alice@example.com --password secret1
  taskctl login --email alice@example.com --password secret1
  taskctl add "Buy milk" --due 2026-03-01
  taskctl list --status pending
  taskctl toggle <id>
  taskctl edit <id> --title "Buy oat milk" --clear-due
  taskctl rm <id> <id>

CONFIGURATION:
  TASKCTL_SERVER       API base URL (default: http://localhost:3000/api)
  TASKCTL_TIMEOUT      Per-request timeout (default: 10s)
  TASKCTL_TOKEN_FILE   Where the login token is kept (default: <config dir>/go-tasks/token)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.session.Init()
		},
	}

	root.addAuthCommands()
	root.addTaskCommands()
	return root
}

// Command exposes the cobra command, mostly so tests can set args and output.
func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Execute(ctx context.Context, args []string) error {
	r.cmd.SetArgs(args)
	return r.cmd.ExecuteContext(ctx)
}

func (r *RootCommand) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RootCommand) requireLogin() error {
	if !r.session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}
