package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/output"
)

func keysCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage access keys on a server",
	}

	createCmd := &cobra.Command{
		Use:   "create <server-id> <name>",
		Short: "Create an access key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if err := models.ValidateName(name); err != nil {
				return err
			}
			return withServer(cmd, flags, args[0], func(c *outline.Client, f output.Formatter) error {
				key, err := c.CreateAccessKey(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("failed to create key: %w", err)
				}
				return render(cmd, f, keyTable{*key})
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <server-id> <key-id>",
		Aliases: []string{"rm"},
		Short:   "Delete an access key",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID := args[1]
			if err := models.ValidateKeyID(keyID); err != nil {
				return err
			}
			return withServer(cmd, flags, args[0], func(c *outline.Client, _ output.Formatter) error {
				if err := c.DeleteAccessKey(cmd.Context(), keyID); err != nil {
					return fmt.Errorf("failed to delete key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key %s deleted\n", keyID)
				return nil
			})
		},
	}

	renameCmd := &cobra.Command{
		Use:   "rename <server-id> <key-id> <name>",
		Short: "Rename an access key",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID := args[1]
			name := strings.TrimSpace(strings.Join(args[2:], " "))
			if err := models.ValidateKeyID(keyID); err != nil {
				return err
			}
			if err := models.ValidateName(name); err != nil {
				return err
			}
			return withServer(cmd, flags, args[0], func(c *outline.Client, _ output.Formatter) error {
				if err := c.RenameAccessKey(cmd.Context(), keyID, name); err != nil {
					return fmt.Errorf("failed to rename key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key %s renamed\n", keyID)
				return nil
			})
		},
	}

	limitCmd := &cobra.Command{
		Use:   "limit <server-id> <key-id> <bytes|none>",
		Short: "Set or remove the data limit of an access key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID := args[1]
			if err := models.ValidateKeyID(keyID); err != nil {
				return err
			}
			limit, err := parseLimitArg(args[2])
			if err != nil {
				return err
			}
			return withServer(cmd, flags, args[0], func(c *outline.Client, _ output.Formatter) error {
				if limit == nil {
					err = c.RemoveDataLimit(cmd.Context(), keyID)
				} else {
					err = c.SetDataLimit(cmd.Context(), keyID, *limit)
				}
				if err != nil {
					return fmt.Errorf("failed to update limit: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Limit of key %s updated\n", keyID)
				return nil
			})
		},
	}

	cmd.AddCommand(createCmd, deleteCmd, renameCmd, limitCmd)
	return cmd
}

// withServer resolves a registered server and hands its API client and the
// selected formatter to fn.
func withServer(cmd *cobra.Command, flags *globalFlags, serverID string, fn func(*outline.Client, output.Formatter) error) error {
	a, f, err := cliApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()

	ep, err := lookupServer(cmd, a, serverID)
	if err != nil {
		return err
	}
	return fn(a.clients(ep.ConnectionURL), f)
}

// parseLimitArg accepts a non-negative byte count, or "none" to remove the
// limit.
func parseLimitArg(s string) (*int64, error) {
	switch strings.ToLower(s) {
	case "none", "null", "off":
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid limit value %q", s)
	}
	return &n, nil
}
