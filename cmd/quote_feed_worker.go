/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/krobus00/fx-stream-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// quoteFeedWorkerCmd represents the quoteFeedWorker command
var quoteFeedWorkerCmd = &cobra.Command{
	Use:   "quote-feed-worker",
	Short: "Consume raw venue quote events into the quote store",
	Long: `Consumes raw quote events published by upstream venue feed publishers,
validates and normalizes them, and upserts them into the raw quote store
polled by the quote-stream-gateway.`,
	Run: bootstrap.StartQuoteFeedWorker,
}

func init() {
	rootCmd.AddCommand(quoteFeedWorkerCmd)
}
