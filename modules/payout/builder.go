// Package payout builds settlement reports: atomic aggregation of
// proven work over a time window into an immutable, exportable
// settlement document.
package payout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/google/uuid"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/types"
)

// Builder generates and exports PayoutReports from the Repository's
// challenge history.
type Builder struct {
	repo modules.Repository
}

// New constructs a Builder backed by repo.
func New(repo modules.Repository) *Builder {
	return &Builder{repo: repo}
}

// Summary is the caller-facing result of Generate: the report, its line
// items, and a few headline numbers convenient for a dashboard.
type Summary struct {
	Report         types.PayoutReport
	LineItems      []types.PayoutLineItem
	TotalChallenges int
}

// recipientTally accumulates per-node counters while scanning the
// window; the node's operator name is the recipient of the payout.
type recipientTally struct {
	success int
	total   int
}

// Generate aggregates every challenge in [periodStart, periodEnd] by
// recipient and creates the PayoutReport and its PayoutLineItems as one
// atomic unit, so the report total always equals the sum of its items.
func (b *Builder) Generate(ctx context.Context, periodStart, periodEnd time.Time) (Summary, error) {
	challenges, err := b.repo.ListChallengesInWindow(ctx, periodStart, periodEnd)
	if err != nil {
		return Summary{}, err
	}

	tallies := make(map[uuid.UUID]*recipientTally)
	for _, c := range challenges {
		t, ok := tallies[c.NodeID]
		if !ok {
			t = &recipientTally{}
			tallies[c.NodeID] = t
		}
		t.total++
		if c.Result == types.ChallengeSuccess {
			t.success++
		}
	}

	report := types.PayoutReport{
		ID:          uuid.New(),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      types.PayoutPending,
		CreatedAt:   time.Now(),
		TotalHBD:    types.ZeroHBD,
	}

	var items []types.PayoutLineItem
	for nodeID, tally := range tallies {
		// A zero total never occurs here since every tally entry was
		// seeded by at least one challenge; a node with no challenges
		// in the window is simply absent from tallies and gets no line
		// item.
		node, err := b.repo.GetNode(ctx, nodeID)
		if err != nil {
			return Summary{}, err
		}

		successRate := 100 * float64(tally.success) / float64(tally.total)
		amount := types.BaseReward.Mul(float64(tally.success)).RoundBank(3)

		items = append(items, types.PayoutLineItem{
			ReportID:    report.ID,
			Recipient:   node.OperatorName,
			HBDAmount:   amount,
			ProofCount:  tally.success,
			SuccessRate: successRate,
		})
		report.TotalHBD = report.TotalHBD.Add(amount)
	}

	// Deterministic ordering: recipient name ascending, so export output
	// is stable across repeated calls over the same window.
	sort.Slice(items, func(i, j int) bool { return items[i].Recipient < items[j].Recipient })

	report.RecipientCount = len(items)

	report, items, err = b.repo.CreatePayoutReport(ctx, report, items)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Report: report, LineItems: items, TotalChallenges: len(challenges)}, nil
}

// ExportPayout is one recipient's row in the portable export document.
type ExportPayout struct {
	Username    string `json:"username"`
	Amount      string `json:"amount"`
	Proofs      int    `json:"proofs"`
	SuccessRate float64 `json:"successRate"`
}

// Export is the portable payout document handed to external settlement
// tooling. Monetary fields are three-decimal strings; the period's dates
// are YYYY-MM-DD and generatedAt is a full timestamp.
type Export struct {
	ReportID    uuid.UUID      `json:"reportId"`
	Period      string         `json:"period"`
	GeneratedBy string         `json:"generatedBy"`
	GeneratedAt time.Time      `json:"generatedAt"`
	TotalHBD    string         `json:"totalHbd"`
	Payouts     []ExportPayout `json:"payouts"`
}

// Export builds the portable settlement document for an existing
// report. generatedBy identifies the operator account that requested
// the export.
func (b *Builder) Export(ctx context.Context, reportID uuid.UUID, generatedBy string) (Export, error) {
	report, items, err := b.repo.GetPayoutReport(ctx, reportID)
	if err != nil {
		return Export{}, err
	}

	payouts := make([]ExportPayout, len(items))
	for i, item := range items {
		payouts[i] = ExportPayout{
			Username:    item.Recipient,
			Amount:      item.HBDAmount.String(),
			Proofs:      item.ProofCount,
			SuccessRate: item.SuccessRate,
		}
	}

	return Export{
		ReportID:    report.ID,
		Period:      fmt.Sprintf("%s_to_%s", report.PeriodStart.Format("2006-01-02"), report.PeriodEnd.Format("2006-01-02")),
		GeneratedBy: generatedBy,
		GeneratedAt: time.Now(),
		TotalHBD:    report.TotalHBD.String(),
		Payouts:     payouts,
	}, nil
}

// Approve transitions a report pending->approved.
func (b *Builder) Approve(ctx context.Context, reportID uuid.UUID) error {
	report, _, err := b.repo.GetPayoutReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Status != types.PayoutPending {
		return errors.Extend(fmt.Errorf("report %s is %s, not pending", reportID, report.Status), modules.ErrConflict)
	}
	return b.repo.UpdatePayoutStatus(ctx, reportID, types.PayoutApproved, "")
}

// Execute transitions an approved report to executed, recording the
// settlement transaction hash.
func (b *Builder) Execute(ctx context.Context, reportID uuid.UUID, txHash string) error {
	report, _, err := b.repo.GetPayoutReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Status != types.PayoutApproved {
		return errors.Extend(fmt.Errorf("report %s is %s, not approved", reportID, report.Status), modules.ErrConflict)
	}
	return b.repo.UpdatePayoutStatus(ctx, reportID, types.PayoutExecuted, txHash)
}
