package main

import (
	"errors"
	"fmt"
	"io"

	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/spf13/cobra"
)

type refreshResponse struct {
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
	Done   bool   `json:"done"`
}

// newRefreshCmd creates the "refresh" command.
func newRefreshCmd(c *cli) *cobra.Command {
	var (
		uid, userID int
		req         apihttp.RefreshRequest
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute restriction levels",
		Long: `Recompute levels for one uid (--uid), one user (--user) or every
running user. The reason takes the "main-sub" form, e.g. usage-user_interaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uidSet, userSet := cmd.Flags().Changed("uid"), cmd.Flags().Changed("user")
			if uidSet && userSet {
				return errors.New("--uid and --user are mutually exclusive")
			}
			if uidSet {
				req.UID = &uid
			}
			if userSet {
				req.UserID = &userID
			}

			var resp refreshResponse
			if err := c.api.do("POST", "/v1/refresh", req, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				state := "queued"
				if resp.Done {
					state = "done"
				}
				fmt.Fprintf(w, "refresh %s (%s): %s\n", resp.Scope, resp.Reason, state)
			})
		},
	}
	cmd.Flags().IntVar(&uid, "uid", 0, "refresh one uid")
	cmd.Flags().IntVar(&userID, "user", 0, "refresh one user")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "transition reason")
	cmd.Flags().BoolVar(&req.AllowEscalation, "escalate", false, "allow consent escalation")
	cmd.Flags().BoolVar(&req.Wait, "wait", false, "wait until the refresh has run")
	return cmd
}

// newDumpCmd creates the "dump" command.
func newDumpCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the controller's diagnostic dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := c.api.raw("/v1/dump")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
}
