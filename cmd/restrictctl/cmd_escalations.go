package main

import (
	"fmt"
	"io"
	"time"

	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/spf13/cobra"
)

// newEscalationsCmd creates the "escalations" command group.
func newEscalationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List pending consent escalation requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Requests []device.EscalationRequest `json:"requests"`
			}
			if err := c.api.do("GET", "/v1/escalations", nil, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tUID\tPACKAGE\tREQUESTED")
				for _, r := range resp.Requests {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.ID, r.UID, r.Package, r.RequestedAt.Format(time.RFC3339))
				}
			})
		},
	}
	cmd.AddCommand(
		newResolveCmd(c, "approve", "approved", true),
		newResolveCmd(c, "deny", "denied", false),
	)
	return cmd
}

func newResolveCmd(c *cli, verb, done string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: "Resolve a pending escalation request: " + verb,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/escalations/" + args[0]
			if err := c.api.do("POST", path, apihttp.EscalationDecision{Approve: approve}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], done)
			return nil
		},
	}
}
