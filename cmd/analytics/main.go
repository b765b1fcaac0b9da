// Command analytics computes wallet and token analytics from on-chain data.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onchain-analytics/internal/config"
	"onchain-analytics/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "analytics",
		Short:         "On-chain wallet and token analytics",
		Long:          `Reconstructs wallet trade history and P&L, holder censuses and early-buyer classifications from Solana data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			log, err = logger.New(cfg.App.LogLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(
		newWalletCmd(),
		newTokenCmd(),
		newAnalyzeCmd(),
		newRescanCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
