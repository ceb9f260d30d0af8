package main

import (
	"fmt"
	"io"

	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/spf13/cobra"
)

// newBucketCmd creates the "bucket" command.
func newBucketCmd(c *cli) *cobra.Command {
	var userID int
	cmd := &cobra.Command{
		Use:   "bucket <package> <bucket>",
		Short: "Move a package to a standby bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := types.ParseStandbyBucket(args[1])
			if err != nil {
				return err
			}
			if err := c.api.do("PUT", packagePath(userID, args[0], "bucket"), apihttp.BucketRequest{Bucket: bucket}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: bucket %s\n", args[0], bucket)
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "user id")
	return cmd
}

// newRestrictCmd creates the "restrict" command.
func newRestrictCmd(c *cli) *cobra.Command {
	return newFlagCmd(c, "restrict", "background-restriction", "Set or clear the background restricted flag")
}

// newHibernateCmd creates the "hibernate" command.
func newHibernateCmd(c *cli) *cobra.Command {
	return newFlagCmd(c, "hibernate", "hibernation", "Put a package into or out of hibernation")
}

func newFlagCmd(c *cli, name, resource, short string) *cobra.Command {
	var userID int
	cmd := &cobra.Command{
		Use:   name + " <package> on|off",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			if err := c.api.do("PUT", packagePath(userID, args[0], resource), apihttp.FlagRequest{Enabled: on}, nil); err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", args[0], name, state)
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "user id")
	return cmd
}

// newInstallCmd creates the "install" command.
func newInstallCmd(c *cli) *cobra.Command {
	var (
		userID int
		bucket string
	)
	cmd := &cobra.Command{
		Use:   "install <package>",
		Short: "Install a package for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := apihttp.InstallRequest{Name: args[0]}
			if bucket != "" {
				b, err := types.ParseStandbyBucket(bucket)
				if err != nil {
					return err
				}
				req.Bucket = &b
			}
			var info device.PackageInfo
			if err := c.api.do("POST", fmt.Sprintf("/v1/users/%d/packages", userID), req, &info); err != nil {
				return err
			}
			return c.emit(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "installed %s as uid %d (%s)\n", info.Name, info.UID, info.Bucket)
			})
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&bucket, "bucket", "", "initial standby bucket (default active)")
	return cmd
}

// newUninstallCmd creates the "uninstall" command.
func newUninstallCmd(c *cli) *cobra.Command {
	var userID int
	cmd := &cobra.Command{
		Use:   "uninstall <package>",
		Short: "Remove a package for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.api.do("DELETE", packagePath(userID, args[0], ""), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uninstalled %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&userID, "user", 0, "user id")
	return cmd
}
