package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the employees tasks can be assigned to (boss only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			users, err := c.newGatewayClient().ListUsers(ctx)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(users)
			}
			if len(users) == 0 {
				c.println("No employees")
				return nil
			}

			w := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.Email)
			}
			return w.Flush()
		},
	})

	return cmd
}
