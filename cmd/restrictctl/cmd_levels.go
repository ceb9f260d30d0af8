package main

import (
	"fmt"
	"io"

	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/spf13/cobra"
)

type levelsResponse struct {
	Levels []restriction.PackageState `json:"levels"`
	Count  int                        `json:"count"`
	Ready  bool                       `json:"ready"`
}

// newLevelsCmd creates the "levels" command.
func newLevelsCmd(c *cli) *cobra.Command {
	var uid int
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List recorded restriction levels",
		Long:  "List every recorded (uid, package) level, or the aggregate level of one uid with --uid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("uid") {
				var resp apihttp.UIDLevelResponse
				if err := c.api.do("GET", fmt.Sprintf("/v1/levels/%d", uid), nil, &resp); err != nil {
					return err
				}
				return c.emit(cmd, resp, func(w io.Writer) {
					fmt.Fprintf(w, "uid %d: %s\n", resp.UID, resp.Level)
					writeStates(w, resp.Packages)
				})
			}

			var resp levelsResponse
			if err := c.api.do("GET", "/v1/levels", nil, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				if !resp.Ready {
					fmt.Fprintln(w, "controller not ready")
				}
				writeStates(w, resp.Levels)
			})
		},
	}
	cmd.Flags().IntVar(&uid, "uid", 0, "show one uid")
	return cmd
}

func writeStates(w io.Writer, states []restriction.PackageState) {
	fmt.Fprintln(w, "UID\tPACKAGE\tLEVEL\tPREVIOUS\tREASON")
	for _, st := range states {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", st.UID, st.PackageName, st.Current, st.Previous, st.Reason)
	}
}

// newLevelCmd creates the "level" command.
func newLevelCmd(c *cli) *cobra.Command {
	var userID int
	cmd := &cobra.Command{
		Use:   "level <package>",
		Short: "Show the level of one package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.PackageLevelResponse
			if err := c.api.do("GET", packagePath(userID, args[0], "level"), nil, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				fmt.Fprintf(w, "package\t%s\n", resp.Package)
				fmt.Fprintf(w, "uid\t%d\n", resp.UID)
				fmt.Fprintf(w, "level\t%s\n", resp.Level)
				fmt.Fprintf(w, "previous\t%s\n", resp.Previous)
				fmt.Fprintf(w, "reason\t%s\n", resp.Reason)
				fmt.Fprintf(w, "active\t%t\n", resp.Active)
			})
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "user id")
	return cmd
}
