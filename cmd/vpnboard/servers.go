package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shohag/vpnboard/internal/models"
)

func serversCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage registered servers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			eps, err := a.reg.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list servers: %w", err)
			}
			return render(cmd, f, serverTable(models.ToSafeViews(eps)))
		},
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a server by its management API URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			apiURL, _ := cmd.Flags().GetString("api-url")
			if err := models.ValidateName(name); err != nil {
				return err
			}
			if err := models.ValidateConnectionURL(apiURL); err != nil {
				return err
			}

			a, f, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ep, err := a.reg.Add(cmd.Context(), name, apiURL)
			if err != nil {
				return fmt.Errorf("failed to add server: %w", err)
			}
			return render(cmd, f, serverTable{models.ToSafeView(*ep)})
		},
	}
	addCmd.Flags().String("name", "", "display name")
	addCmd.Flags().String("api-url", "", "management API URL (https://host:port/token)")
	_ = addCmd.MarkFlagRequired("api-url")

	renameCmd := &cobra.Command{
		Use:   "rename <server-id> <name>",
		Short: "Rename a server on the server itself and in the registry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if err := models.ValidateName(name); err != nil {
				return err
			}

			a, f, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ep, err := lookupServer(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := a.clients(ep.ConnectionURL).RenameServer(cmd.Context(), name); err != nil {
				return fmt.Errorf("failed to rename server: %w", err)
			}
			if err := a.reg.Rename(cmd.Context(), ep.ID, name); err != nil {
				return fmt.Errorf("failed to store server name: %w", err)
			}
			ep.Name = name
			return render(cmd, f, serverTable{models.ToSafeView(*ep)})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <server-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a server from the registry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ep, err := lookupServer(cmd, a, args[0])
			if err != nil {
				return err
			}
			if err := a.reg.Remove(cmd.Context(), ep.ID); err != nil {
				return fmt.Errorf("failed to remove server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server %s removed\n", ep.ID)
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, renameCmd, removeCmd)
	return cmd
}

func lookupServer(cmd *cobra.Command, a *app, id string) (*models.Endpoint, error) {
	if err := models.ValidateServerID(id); err != nil {
		return nil, err
	}
	return a.reg.Get(cmd.Context(), id)
}
