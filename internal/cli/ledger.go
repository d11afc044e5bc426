package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notifier/internal/display"
	"github.com/smokyabdulrahman/prayer-notifier/internal/ledger"
)

// openLedger is replaced in tests.
var openLedger = ledger.Open

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or prune the trigger ledger",
		Long:  "The ledger records every notification the daemon fired, so a restart\nnever repeats one. Subcommands read the configured backend.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List fired triggers",
		Args:  cobra.NoArgs,
		RunE:  runLedgerList,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: fmt.Sprintf("Drop records older than %d days", ledger.RetainDays),
		Args:  cobra.NoArgs,
		RunE:  runLedgerPrune,
	})

	return cmd
}

func ledgerFromConfig(ctx context.Context, cmd *cobra.Command) (ledger.Ledger, string, error) {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	if cfg.Ledger == ledger.BackendMemory {
		return nil, "", fmt.Errorf("the memory ledger only exists inside a running daemon")
	}
	l, err := openLedger(ctx, ledger.Options{
		Backend:     cfg.Ledger,
		Path:        cfg.LedgerPath,
		RedisAddr:   cfg.RedisAddr,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, "", err
	}
	return l, timeLayout(cfg), nil
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, layout, err := ledgerFromConfig(ctx, cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	recs, err := l.List(ctx)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	if FlagJSON {
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(recs) == 0 {
		fmt.Fprintln(w, "No triggers recorded.")
		return nil
	}

	tbl := display.NewTable([]string{"Date", "Prayer", "Kind", "Fired"})
	for _, r := range recs {
		tbl.AddRow([]string{
			r.Key.Date,
			r.Key.Prayer.String(),
			string(r.Key.Kind),
			r.FiredAt.Local().Format("2006-01-02 " + layout),
		})
	}
	fmt.Fprint(w, tbl.Render())
	return nil
}

func runLedgerPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, _, err := ledgerFromConfig(ctx, cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	n, err := l.Prune(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout(cmd), "Removed %d records older than %s.\n", n, ledger.PruneCutoff(time.Now()))
	return nil
}
