package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/biosecret/go-tasks/client"
	"github.com/biosecret/go-tasks/models"
)

func (r *RootCommand) addTaskCommands() {
	r.cmd.AddCommand(
		r.listCommand(),
		r.addCommand(),
		r.toggleCommand(),
		r.editCommand(),
		r.removeCommand(),
	)
}

func (r *RootCommand) listCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireLogin(); err != nil {
				return err
			}
			var want models.Status
			if status != "" {
				parsed, err := models.ParseStatus(status)
				if err != nil {
					return err
				}
				want = parsed
			}

			ctx, cancel := r.context(cmd)
			defer cancel()

			tasks, err := r.cache.Refresh(ctx)
			if err != nil {
				return err
			}
			if want != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if t.Status == want {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}
			return printTasks(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show tasks with this status (pending, in-progress, completed)")
	return cmd
}

func (r *RootCommand) addCommand() *cobra.Command {
	var description, due, status string

	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireLogin(); err != nil {
				return err
			}
			in := models.CreateTaskInput{
				Title:       strings.Join(args, " "),
				Description: description,
				Status:      models.Status(status),
			}
			if due != "" {
				d, err := models.ParseDate(due)
				if err != nil {
					return err
				}
				in.DueDate = &d
			}

			ctx, cancel := r.context(cmd)
			defer cancel()

			created, err := r.cache.Create(ctx, in)
			if created == nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", created.ID)
			return err
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Longer description")
	cmd.Flags().StringVar(&due, "due", "", "Due date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&status, "status", "", "Initial status (default pending)")
	return cmd
}

func (r *RootCommand) toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [id]",
		Short: "Flip a task between pending and completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := r.context(cmd)
			defer cancel()

			if _, err := r.cache.Refresh(ctx); err != nil {
				return err
			}
			m, err := r.cache.ToggleCompletion(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", m.TaskID, models.StatusFromCompleted(m.Completed))
			return nil
		},
	}
}

func (r *RootCommand) editCommand() *cobra.Command {
	var title, description, due, status string
	var completed, clearDue bool

	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Change only the given fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireLogin(); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("due") && clearDue {
				return errors.New("--due and --clear-due cannot be combined")
			}

			var patch models.TaskPatch
			if flags.Changed("title") {
				patch.Title = models.Some(title)
			}
			if flags.Changed("description") {
				patch.Description = models.Some(description)
			}
			if flags.Changed("status") {
				patch.Status = models.Some(models.Status(status))
			}
			if flags.Changed("completed") {
				patch.Completed = models.Some(completed)
			}
			switch {
			case clearDue:
				patch.DueDate = models.Null[models.Date]()
			case flags.Changed("due"):
				d, err := models.ParseDate(due)
				if err != nil {
					return err
				}
				patch.DueDate = models.Some(d)
			}
			if patch == (models.TaskPatch{}) {
				return errors.New("nothing to change, pass at least one field flag")
			}

			ctx, cancel := r.context(cmd)
			defer cancel()

			updated, err := r.cache.ApplyEdit(ctx, args[0], patch)
			if updated == nil {
				return err
			}
			if perr := printTasks(cmd.OutOrStdout(), []models.Task{*updated}); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description, empty clears it")
	cmd.Flags().StringVar(&due, "due", "", "New due date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	cmd.Flags().StringVar(&status, "status", "", "New status")
	cmd.Flags().BoolVar(&completed, "completed", false, "Mark completed (or --completed=false for pending)")
	return cmd
}

func (r *RootCommand) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id...]",
		Aliases: []string{"delete"},
		Short:   "Delete one or more tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireLogin(); err != nil {
				return err
			}
			seen := make(map[string]bool, len(args))
			for _, id := range args {
				if seen[id] {
					continue
				}
				seen[id] = true
				if r.selection.State() == client.Idle {
					r.selection.LongPress(id)
				} else {
					r.selection.Tap(id)
				}
			}

			ctx, cancel := r.context(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			report := r.selection.BulkDelete(ctx, func(o client.DeleteOutcome) {
				switch o.Kind {
				case client.OutcomeSuccess:
					fmt.Fprintf(out, "Deleted %s\n", o.ID)
				case client.OutcomeNotFound:
					fmt.Fprintf(out, "Already gone %s\n", o.ID)
				default:
					fmt.Fprintf(out, "Failed %s: %s\n", o.ID, o.Err)
				}
			})
			if warning := report.Warning(); warning != "" {
				return errors.New(warning)
			}
			return nil
		},
	}
}

func printTasks(w io.Writer, tasks []models.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No tasks found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDUE\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, due, t.Title)
	}
	return tw.Flush()
}
