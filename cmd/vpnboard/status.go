package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/shohag/vpnboard/internal/models"
	"github.com/shohag/vpnboard/internal/output"
	"github.com/shohag/vpnboard/internal/status"
)

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [server-id]",
		Short: "Check live status of one or all servers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			var eps []models.Endpoint
			if len(args) == 1 {
				ep, err := lookupServer(cmd, a, args[0])
				if err != nil {
					return err
				}
				eps = []models.Endpoint{*ep}
			} else {
				eps, err = a.reg.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list servers: %w", err)
				}
			}

			var mu sync.Mutex
			results := make(statusTable, 0, len(eps))
			a.agg.CheckAll(cmd.Context(), eps, func(r status.Result) {
				mu.Lock()
				defer mu.Unlock()
				results = append(results, r)
			})
			return render(cmd, f, results)
		},
	}
}

func usageCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <server-id>",
		Short: "Show per-key traffic usage of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, f, err := cliApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ep, err := lookupServer(cmd, a, args[0])
			if err != nil {
				return err
			}
			snap, err := a.agg.Usage(cmd.Context(), *ep)
			if err != nil {
				return fmt.Errorf("failed to fetch usage: %w", err)
			}
			if _, ok := f.(*output.TableFormatter); ok {
				s := snap.Server
				fmt.Fprintf(cmd.OutOrStdout(), "Total %s across %d active and %d unused keys, %d over limit\n\n",
					output.FormatBytes(s.TotalUsage), s.ActiveKeys, s.UnusedKeys, s.KeysOverLimit)
				return render(cmd, f, usageTable(snap.Keys))
			}
			return render(cmd, f, snap)
		},
	}
}
