package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// newPropertiesCmd creates the "properties" command group.
func newPropertiesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "List configuration properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Properties map[string]string `json:"properties"`
			}
			if err := c.api.do("GET", "/v1/properties", nil, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				keys := make([]string, 0, len(resp.Properties))
				for k := range resp.Properties {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "%s\t%s\n", k, resp.Properties[k])
				}
			})
		},
	}
	cmd.AddCommand(newPropertiesSetCmd(c))
	return cmd
}

func newPropertiesSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Set properties; an empty value deletes the key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				values[k] = v
			}
			var resp struct {
				Changed []string `json:"changed"`
			}
			if err := c.api.do("PATCH", "/v1/properties", values, &resp); err != nil {
				return err
			}
			return c.emit(cmd, resp, func(w io.Writer) {
				if len(resp.Changed) == 0 {
					fmt.Fprintln(w, "no changes")
					return
				}
				fmt.Fprintf(w, "changed: %s\n", strings.Join(resp.Changed, ", "))
			})
		},
	}
}
