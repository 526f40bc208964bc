package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/store/sqlite"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage pairing requests for DM access",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingApproveCmd())
	return cmd
}

func pairingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [channel]",
		Short: "List pending pairing requests",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			channel := ""
			if len(args) > 0 {
				channel = args[0]
			}

			ps := openPairingStore()
			defer ps.Close()

			pending, err := ps.ListPending(context.Background(), channel)
			if err != nil {
				fmt.Fprintf(os.Stderr, "list pending: %v\n", err)
				os.Exit(1)
			}
			if len(pending) == 0 {
				fmt.Println("No pending pairing requests.")
				return
			}
			for _, r := range pending {
				fmt.Printf("%-10s  %-20s  %s  %s\n",
					r.Channel, r.SenderID, r.Code,
					time.Unix(r.CreatedAt, 0).Format(time.RFC3339))
			}
		},
	}
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <channel> <code>",
		Short: "Approve a pairing code, adding the sender to the channel allowlist",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			channel, code := args[0], args[1]

			ps := openPairingStore()
			defer ps.Close()

			senderID, err := ps.ApprovePairing(context.Background(), channel, code)
			if err != nil {
				fmt.Fprintf(os.Stderr, "approve: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Approved %s on %s.\n", senderID, channel)
		},
	}
}

func openPairingStore() *sqlite.PairingStore {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ps, err := sqlite.Open(cfg.Store.PairingDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open pairing store %s: %v\n", cfg.Store.PairingDB, err)
		os.Exit(1)
	}
	return ps
}
