package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// emit prints v as indented JSON with --json, otherwise through text
func (c *cli) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if c.json {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// parseSwitch accepts on/off style arguments
func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "yes", "enable":
		return true, nil
	case "off", "no", "disable":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func packagePath(userID int, pkg, suffix string) string {
	p := fmt.Sprintf("/v1/users/%d/packages/%s", userID, pkg)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}
