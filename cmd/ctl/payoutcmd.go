package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spknetwork/storage-coordinator/modules/payout"
)

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "generate and export payout reports",
}

var payoutGenerateCmd = &cobra.Command{
	Use:   "generate [periodStart] [periodEnd]",
	Short: "generate a payout report over an RFC3339 time window (requires --token)",
	Run:   wrap(payoutgenerate),
}

func payoutgenerate(periodStart, periodEnd string) {
	body := fmt.Sprintf(`{"periodStart":%q,"periodEnd":%q}`, periodStart, periodEnd)
	var summary payout.Summary
	if err := postAPI("/validator/payout/generate", []byte(body), &summary); err != nil {
		die("Could not generate payout report:", err)
	}
	fmt.Printf("Report %s: %d line items, %d challenges tallied\n", summary.Report.ID, len(summary.LineItems), summary.TotalChallenges)
}

var payoutExportCmd = &cobra.Command{
	Use:   "export [reportID]",
	Short: "export a payout report (requires --token)",
	Run:   wrap(payoutexport),
}

func payoutexport(reportID string) {
	var export payout.Export
	if err := getAPI("/validator/payout/reports/"+reportID+"/export", &export); err != nil {
		die("Could not export payout report:", err)
	}
	fmt.Printf("Report %s: total %s HBD across %d payouts\n", export.ReportID, export.TotalHBD, len(export.Payouts))
}
