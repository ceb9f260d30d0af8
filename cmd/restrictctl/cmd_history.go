package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/audit"
	"github.com/spf13/cobra"
)

type historyResponse struct {
	Transitions []audit.Record `json:"transitions"`
	Count       int            `json:"count"`
}

// newHistoryCmd creates the "history" command.
func newHistoryCmd(c *cli) *cobra.Command {
	var (
		uid   int
		pkg   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded level transitions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if cmd.Flags().Changed("uid") {
				q.Set("uid", strconv.Itoa(uid))
			}
			if pkg != "" {
				q.Set("package", pkg)
			}

			var resp historyResponse
			if err := c.api.do("GET", "/v1/history?"+q.Encode(), nil, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				fmt.Fprintln(w, "AT\tUID\tPACKAGE\tFROM\tTO\tREASON")
				for _, r := range resp.Transitions {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
						r.At.Format(time.RFC3339), r.UID, r.Package, r.Previous, r.Level, r.Reason)
				}
			})
		},
	}
	cmd.Flags().IntVar(&uid, "uid", 0, "only this uid")
	cmd.Flags().StringVar(&pkg, "package", "", "only this package (needs --uid)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}
