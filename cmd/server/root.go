package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Gamenter95/wewa/internal/config"
	"github.com/Gamenter95/wewa/internal/logging"
)

var (
	cfg    *config.Config
	logger *logrus.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Wallet payment gateway",
	Long: `Wallet payment gateway exposes a token-gated HTTP endpoint that moves
funds from the token owner's account to an account identified by phone number.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger = logging.New(cfg.Log.Level, cfg.Log.Format)
	},
}
