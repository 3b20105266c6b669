package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
	"github.com/pesio-ai/be-ap-payables/internal/service"
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Print the full evaluation of a snapshot",
		Example: `  payablectl evaluate --file draft.json
  cat draft.json | payablectl evaluate --file - --action APPROVE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := evaluateSnapshot(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd, ev)
		},
	}
	addSnapshotFlags(cmd)
	return cmd
}

func newNextStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-status",
		Short: "Print the transition decision of a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := evaluateSnapshot(cmd)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, ev.Next); err != nil {
				return err
			}
			if strict, _ := cmd.Flags().GetBool("strict"); strict {
				return ev.Next.Err()
			}
			return nil
		},
	}
	addSnapshotFlags(cmd)
	cmd.Flags().Bool("strict", false, "Exit non-zero when the decision is held or blocked")
	return cmd
}

func addSnapshotFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "-", "Snapshot JSON file, - for stdin")
	cmd.Flags().String("kind", "", "Override the snapshot kind: invoice, payable or receivable")
	cmd.Flags().String("action", "", "Override the snapshot action, e.g. APPROVE or MARK_PAID")
}

func evaluateSnapshot(cmd *cobra.Command) (*service.Evaluation, error) {
	path, _ := cmd.Flags().GetString("file")
	snap, err := readSnapshot(cmd, path)
	if err != nil {
		return nil, err
	}

	if k, _ := cmd.Flags().GetString("kind"); k != "" {
		if snap.Kind, err = service.ParseKind(k); err != nil {
			return nil, err
		}
	}
	if a, _ := cmd.Flags().GetString("action"); a != "" {
		action, ok := lifecycle.ParseAction(a)
		if !ok {
			return nil, fmt.Errorf("unknown action %q", a)
		}
		snap.Input.Action = action
	}

	// Snapshots are evaluated without an Invoicing API.
	svc := service.NewService(nil, service.Options{CurrencyMode: currencyMode(cmd)}, cmdLogger(cmd))
	adapter, err := svc.Adapter(snap.Kind)
	if err != nil {
		return nil, err
	}
	ev := adapter.EvaluateSnapshot(snap.Context, snap.Invoice, snap.Input)
	return &ev, nil
}
