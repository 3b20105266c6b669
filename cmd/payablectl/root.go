package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/logger"
	"github.com/pesio-ai/be-ap-payables/internal/rollup"
	"github.com/pesio-ai/be-ap-payables/internal/service"
)

// snapshot is the file format read by evaluate and next-status.
type snapshot struct {
	Kind    service.Kind              `json:"kind"`
	Context service.EvaluationContext `json:"context"`
	Invoice *domain.Invoice           `json:"invoice"`
	Input   service.Input             `json:"input"`
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "payablectl",
		Short: "Evaluate payable, invoice and receivable snapshots",
		Long: `payablectl runs the payables engine over JSON snapshots without
calling the Invoicing API. A snapshot holds the document kind, the
evaluation context (organization config, users, policies, the payment
methods of the entity and its counterparty, counterparty profile) and the
invoice itself.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("currency-mode", string(rollup.ModeLegacy), "Minor unit conversion: legacy or iso")
	root.PersistentFlags().String("log-level", "warn", "Log level")

	root.AddCommand(newEvaluateCmd(), newNextStatusCmd(), newRollupCmd())
	return root
}

func cmdLogger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logger.New(logger.Config{Level: level, Format: "console", Output: cmd.ErrOrStderr()})
}

func currencyMode(cmd *cobra.Command) rollup.MinorUnitMode {
	mode, _ := cmd.Flags().GetString("currency-mode")
	return rollup.ParseMinorUnitMode(mode)
}

// readSnapshot loads a snapshot from path, or stdin when path is "-".
func readSnapshot(cmd *cobra.Command, path string) (*snapshot, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()
		r = f
	}

	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Invoice == nil {
		return nil, fmt.Errorf("snapshot has no invoice")
	}
	if snap.Kind == "" {
		snap.Kind = service.KindPayable
	}
	return &snap, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
