/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/krobus00/fx-stream-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// quoteStreamGatewayCmd represents the quoteStreamGateway command
var quoteStreamGatewayCmd = &cobra.Command{
	Use:   "quote-stream-gateway",
	Short: "Client-facing quote streaming gateway",
	Long: `Quote Stream Gateway serves the websocket endpoint clients subscribe on,
aggregates raw venue quotes into best bid/ask snapshots on a fixed cadence,
and fans the resulting price updates out to every subscribed session.

This service acts as the distribution hub that:
- Accepts websocket subscriptions per instrument
- Sends an immediate snapshot to newly subscribed sessions
- Polls the raw quote store and recomputes best prices every cycle
- Broadcasts updates with per-session failure isolation`,
	Run: bootstrap.StartQuoteStreamGateway,
}

func init() {
	rootCmd.AddCommand(quoteStreamGatewayCmd)
}
