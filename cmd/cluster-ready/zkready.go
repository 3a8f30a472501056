package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var zkReadyCmd = &cobra.Command{
	Use:   "zk-ready <connect-string> <timeout-ms>",
	Short: "Check if the coordination ensemble is ready",
	Long: "Makes a single attempt to establish a session with the ensemble, " +
		"authenticating when --zk-auth-config is set. Exits 0 when a session " +
		"was established within the timeout.",
	Args: argsOrHelp(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		cmd.SilenceUsage = true

		timeout, err := parseTimeoutMs(args[1])
		if err != nil {
			return err
		}

		checker, err := newChecker()
		if err != nil {
			return err
		}

		logger.Debug("checking ensemble readiness",
			zap.String("connectString", args[0]),
			zap.Duration("timeout", timeout))

		if !checker.IsEnsembleReady(cmd.Context(), args[0], timeout) {
			return errNotReady
		}

		logger.Info("ensemble is ready", zap.String("connectString", args[0]))
		return nil
	},
}
