package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/pkg/models"
)

func (c *CLI) newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task commands",
		Long: `Create, list and change tasks.

Every command is checked by the gateway's access policy. A refused
operation exits with code 3 and prints the denial reason.`,
	}

	cmd.AddCommand(c.newTaskCreateCmd())
	cmd.AddCommand(c.newTaskListCmd())
	cmd.AddCommand(c.newTaskStatusCmd())
	cmd.AddCommand(c.newTaskEditCmd())
	cmd.AddCommand(c.newTaskAssignCmd())
	cmd.AddCommand(c.newTaskDeleteCmd())

	return cmd
}

func (c *CLI) newTaskCreateCmd() *cobra.Command {
	var (
		req      models.CreateTaskRequest
		assignTo int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (boss only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("assign-to") {
				req.AssignedTo = &assignTo
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			task, err := c.newGatewayClient().CreateTask(ctx, req)
			if err != nil {
				return err
			}
			return c.showTask("Created", task)
		},
	}

	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "task title")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "task description")
	cmd.Flags().Int64Var(&assignTo, "assign-to", 0, "employee id to assign")

	return cmd
}

func (c *CLI) newTaskListCmd() *cobra.Command {
	var assignedByMe bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks",
		Long: `List the tasks you created or are assigned to.

With --assigned-by-me, list only the tasks you created and assigned to
someone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			client := c.newGatewayClient()
			var (
				list []models.Task
				err  error
			)
			if assignedByMe {
				list, err = client.ListAssignedByMe(ctx)
			} else {
				list, err = client.ListMyTasks(ctx)
			}
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(list)
			}
			if len(list) == 0 {
				c.println("No tasks")
				return nil
			}
			c.printTasks(list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&assignedByMe, "assigned-by-me", false, "only tasks you assigned to others")

	return cmd
}

func (c *CLI) newTaskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <pending|completed>",
		Short: "Change a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			task, err := c.newGatewayClient().UpdateStatus(ctx, id, args[1])
			if err != nil {
				return err
			}
			return c.showTask("Updated", task)
		},
	}
}

func (c *CLI) newTaskEditCmd() *cobra.Command {
	var (
		req      models.EditTaskRequest
		assignTo int64
		unassign bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a task's title and description",
		Long: `Replace a task's title and description.

The assignment is left alone unless --assign-to or --unassign is given.
Changing the assignment requires the boss.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			switch {
			case unassign && cmd.Flags().Changed("assign-to"):
				return errors.NewValidation("assignedTo", "--assign-to and --unassign are mutually exclusive")
			case unassign:
				req.AssignedTo = models.NullID()
			case cmd.Flags().Changed("assign-to"):
				req.AssignedTo = models.SomeID(assignTo)
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			task, err := c.newGatewayClient().EditTask(ctx, id, req)
			if err != nil {
				return err
			}
			return c.showTask("Updated", task)
		},
	}

	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "new description")
	cmd.Flags().Int64Var(&assignTo, "assign-to", 0, "employee id to assign")
	cmd.Flags().BoolVar(&unassign, "unassign", false, "clear the assignment")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func (c *CLI) newTaskAssignCmd() *cobra.Command {
	var (
		to       int64
		unassign bool
	)

	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign or unassign a task (boss only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			var assignee *int64
			switch {
			case unassign && cmd.Flags().Changed("to"):
				return errors.NewValidation("assignedTo", "--to and --unassign are mutually exclusive")
			case cmd.Flags().Changed("to"):
				assignee = &to
			case !unassign:
				return errors.NewValidation("assignedTo", "one of --to or --unassign is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			task, err := c.newGatewayClient().AssignTask(ctx, id, assignee)
			if err != nil {
				return err
			}
			return c.showTask("Updated", task)
		},
	}

	cmd.Flags().Int64Var(&to, "to", 0, "employee id to assign")
	cmd.Flags().BoolVar(&unassign, "unassign", false, "clear the assignment")

	return cmd
}

func (c *CLI) newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			if err := c.newGatewayClient().DeleteTask(ctx, id); err != nil {
				return err
			}
			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{"deleted": id})
			}
			c.printf("✓ Deleted task %d\n", id)
			return nil
		},
	}
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidation("id", "must be a positive integer")
	}
	return id, nil
}

func (c *CLI) showTask(verb string, t *models.Task) error {
	if c.jsonOutput {
		return c.outputJSON(t)
	}
	c.printf("✓ %s task %d\n", verb, t.ID)
	c.printf("  Title:       %s\n", t.Title)
	c.printf("  Description: %s\n", t.Description)
	c.printf("  Status:      %s\n", t.Status)
	c.printf("  Creator:     %s\n", t.Creator)
	c.printf("  Assignee:    %s\n", assigneeLabel(*t))
	if t.Permissions != nil {
		c.printf("  You may:     %s\n", permissionLabel(t.Permissions))
	}
	return nil
}

func (c *CLI) printTasks(list []models.Task) {
	w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tCREATOR\tASSIGNEE\tYOU MAY")
	for _, t := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.Status, t.Creator, assigneeLabel(t), permissionLabel(t.Permissions))
	}
	w.Flush()
}

func assigneeLabel(t models.Task) string {
	switch {
	case t.Assignee != nil:
		return *t.Assignee
	case t.AssignedTo != nil:
		return fmt.Sprintf("#%d", *t.AssignedTo)
	default:
		return "-"
	}
}

func permissionLabel(p *models.Permissions) string {
	if p == nil {
		return "-"
	}
	var out []string
	if p.ChangeStatus {
		out = append(out, "status")
	}
	if p.Edit {
		out = append(out, "edit")
	}
	if p.Assign {
		out = append(out, "assign")
	}
	if p.Delete {
		out = append(out, "delete")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
