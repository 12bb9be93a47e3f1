package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/enoki/backend/internal/app"
	"github.com/zhouzirui/enoki/backend/internal/config"
)

func runEncryptTurns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if strings.TrimSpace(cfg.Store.EncryptionKey) == "" {
		return fmt.Errorf("ENCRYPTION_KEY must be set to encrypt stored turns")
	}

	st, err := app.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.EncryptPlaintextTurns(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d turns, encrypted %d\n", stats.Scanned, stats.Encrypted)
	return nil
}
