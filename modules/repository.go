package modules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spknetwork/storage-coordinator/types"
)

// ListFilter narrows a filtered listing to a status and bounds its size.
// ListNodes returns nodes ordered by reputation descending, then
// lastSeen ascending; ListFiles returns files ordered by confidence
// descending. Neither listing orders by creation time.
type ListFilter struct {
	Status string
	Limit  int
}

// QueueStats summarizes the EncodingJob queue.
type QueueStats struct {
	Queued       int
	Assigned     int
	Processing   int
	Completed    int
	Failed       int
	TotalPending int
}

// Repository is the storage abstraction every other component is built
// against. Implementations
// are free to choose any backing store as long as ClaimJob and
// CreatePayoutReport satisfy the atomicity and race-freedom requirements
// called out in their doc comments; persist.BoltRepository is the one
// shipped with this module.
//
// Every method takes a context so callers can bound how long they wait on
// the store; none of the atomic operations below may be split across two
// round trips to the caller.
type Repository interface {
	// Nodes

	CreateNode(ctx context.Context, n types.StorageNode) (types.StorageNode, error)
	GetNode(ctx context.Context, id uuid.UUID) (types.StorageNode, error)
	GetNodeByPeerID(ctx context.Context, peerID string) (types.StorageNode, error)
	ListNodes(ctx context.Context, f ListFilter) ([]types.StorageNode, error)
	UpdateNode(ctx context.Context, n types.StorageNode) error

	// Files

	CreateFile(ctx context.Context, f types.File) (types.File, error)
	GetFile(ctx context.Context, id uuid.UUID) (types.File, error)
	GetFileByCID(ctx context.Context, cid string) (types.File, error)
	ListFiles(ctx context.Context, f ListFilter) ([]types.File, error)
	UpdateFile(ctx context.Context, f types.File) error
	// DeleteFile cascades: it removes every StorageAssignment and
	// PoAChallenge row referencing fileID before the file row itself.
	DeleteFile(ctx context.Context, fileID uuid.UUID) error

	// Validators

	GetValidator(ctx context.Context, username string) (types.Validator, error)
	UpsertValidator(ctx context.Context, v types.Validator) error

	// Storage assignments

	GetAssignment(ctx context.Context, fileID, nodeID uuid.UUID) (types.StorageAssignment, error)
	UpsertAssignment(ctx context.Context, a types.StorageAssignment) error

	// PoA challenges

	CreateChallenge(ctx context.Context, c types.PoAChallenge) (types.PoAChallenge, error)
	// UpdateChallengeResult is the single writer for a challenge row's
	// result fields: the result update follows row insertion and owns
	// that row exclusively.
	UpdateChallengeResult(ctx context.Context, id uuid.UUID, result types.ChallengeResult, failReason string, response *string, latencyMs *int64) error
	ListChallenges(ctx context.Context, validatorID uuid.UUID, limit int) ([]types.PoAChallenge, error)
	ListChallengesInWindow(ctx context.Context, start, end time.Time) ([]types.PoAChallenge, error)

	// Encoding jobs

	EnqueueJob(ctx context.Context, j types.EncodingJob) (types.EncodingJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (types.EncodingJob, error)
	ListJobs(ctx context.Context, owner string) ([]types.EncodingJob, error)
	// ClaimJob atomically selects the oldest queued job (priority
	// DESC, createdAt ASC, shorts floated to the top), transitions it
	// to assigned, and stamps the lease fields. Under concurrent
	// callers exactly one caller ever observes a given job as claimed;
	// if no job is queued, ok is false. The lease
	// signature itself is computed by the caller (JobScheduler), which
	// owns the HMAC secret; Repository only owns job state.
	ClaimJob(ctx context.Context, encoderID string, encoderType types.EncoderType, leaseDuration time.Duration) (job types.EncodingJob, ok bool, err error)
	UpdateJob(ctx context.Context, j types.EncodingJob) error
	// ListExpiredLeases returns every job whose leaseExpiresAt has
	// passed while it is still in a leased status, for the lease
	// reaper.
	ListExpiredLeases(ctx context.Context, now time.Time) ([]types.EncodingJob, error)
	QueueStats(ctx context.Context) (QueueStats, error)

	// Encoder nodes

	UpsertEncoderNode(ctx context.Context, e types.EncoderNode) error
	ListEncoderNodes(ctx context.Context) ([]types.EncoderNode, error)

	// Payouts

	// CreatePayoutReport inserts the report and every line item as a
	// single atomic unit: callers never observe a report without its
	// line items or vice versa.
	CreatePayoutReport(ctx context.Context, report types.PayoutReport, items []types.PayoutLineItem) (types.PayoutReport, []types.PayoutLineItem, error)
	GetPayoutReport(ctx context.Context, id uuid.UUID) (types.PayoutReport, []types.PayoutLineItem, error)
	UpdatePayoutStatus(ctx context.Context, id uuid.UUID, status types.PayoutStatus, executedTxHash string) error

	// Sessions are intentionally not part of Repository: the session
	// store is an in-memory, single-mutex-protected cache rather than
	// part of the durable store (see sessions.Manager).

	// Close releases the underlying store.
	Close() error
}
