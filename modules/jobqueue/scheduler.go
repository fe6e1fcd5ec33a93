// Package jobqueue implements the encoding job scheduler: lease-based
// dispatch of encoding jobs to external agents, the HMAC-signed
// claim/progress/complete/fail/renew-lease protocol, a lease reaper,
// and best-effort webhook delivery.
package jobqueue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/NebulousLabs/errors"
	"github.com/NebulousLabs/threadgroup"
	"github.com/google/uuid"

	"github.com/spknetwork/storage-coordinator/build"
	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/persist"
	"github.com/spknetwork/storage-coordinator/types"
)

// Config holds the Scheduler's tuning knobs.
type Config struct {
	LeaseDuration  time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	ReapInterval   time.Duration
	WebhookURL     string
	WebhookTimeout time.Duration
}

// reapInterval is how often the lease reaper sweeps for expired leases.
// Dev and testing builds poll far more often than standard so a reaped
// lease shows up in a test within milliseconds instead of seconds.
var reapInterval = build.Select(build.Var{
	Standard: 10 * time.Second,
	Dev:      time.Second,
	Testing:  50 * time.Millisecond,
}).(time.Duration)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LeaseDuration:  120 * time.Second,
		MaxAttempts:    3,
		BaseBackoff:    time.Second,
		MaxBackoff:     time.Minute,
		ReapInterval:   reapInterval,
		WebhookTimeout: 10 * time.Second,
	}
}

func init() {
	cfg := DefaultConfig()
	if cfg.BaseBackoff > cfg.MaxBackoff {
		build.Critical("jobqueue: BaseBackoff must not exceed MaxBackoff")
	}
}

// Scheduler drives the encoding job queue: claim, progress, completion,
// failure/retry, lease renewal and the lease reaper.
type Scheduler struct {
	repo   modules.Repository
	logger *persist.Logger
	cfg    Config
	secret []byte

	httpClient *http.Client

	tg threadgroup.ThreadGroup
}

// New constructs a Scheduler. secret is the HMAC key every lease
// signature is computed and verified with; operators supply it via
// AGENT_HMAC_SECRET.
func New(repo modules.Repository, logger *persist.Logger, secret []byte, cfg Config) *Scheduler {
	return &Scheduler{
		repo:       repo,
		logger:     logger,
		cfg:        cfg,
		secret:     secret,
		httpClient: &http.Client{},
	}
}

// Run starts the lease reaper loop. Close stops it.
func (s *Scheduler) Run() {
	if err := s.tg.Add(); err != nil {
		return
	}
	defer s.tg.Done()

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.tg.StopChan():
			return
		case <-ticker.C:
			s.reapExpiredLeases()
		}
	}
}

// Close stops the reaper loop, draining any in-flight pass.
func (s *Scheduler) Close() error {
	return s.tg.Stop()
}

// Enqueue creates a new queued job. (owner,permlink) must be unique; a
// duplicate surfaces modules.ErrConflict.
func (s *Scheduler) Enqueue(ctx context.Context, owner, permlink, inputCID string, isShort bool) (types.EncodingJob, error) {
	job := types.EncodingJob{
		ID:          uuid.New(),
		Owner:       owner,
		Permlink:    permlink,
		InputCID:    inputCID,
		Status:      types.JobQueued,
		IsShort:     isShort,
		MaxAttempts: s.cfg.MaxAttempts,
		CreatedAt:   time.Now(),
	}
	return s.repo.EnqueueJob(ctx, job)
}

// leaseSignature computes the lease signature:
// HMAC-SHA256(secret, jobId || encoderId || leaseExpiresAt), hex.
func (s *Scheduler) leaseSignature(jobID uuid.UUID, encoderID string, leaseExpiresAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(jobID.String()))
	mac.Write([]byte(encoderID))
	mac.Write([]byte(leaseExpiresAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyLease checks a caller-supplied signature against the job's
// current lease fields and confirms encoderID matches the assignee.
func (s *Scheduler) verifyLease(job types.EncodingJob, encoderID, signature string) error {
	if job.AssignedEncoderID != encoderID {
		return errors.Extend(fmt.Errorf("job %s is not assigned to encoder %q", job.ID, encoderID), modules.ErrInvalid)
	}
	if job.LeaseExpiresAt == nil {
		return errors.Extend(fmt.Errorf("job %s carries no active lease", job.ID), modules.ErrInvalid)
	}
	want := s.leaseSignature(job.ID, encoderID, *job.LeaseExpiresAt)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return errors.Extend(fmt.Errorf("bad lease signature for job %s", job.ID), modules.ErrInvalid)
	}
	return nil
}

// Claim atomically hands the highest-priority queued job to encoderID.
// ok is false if no job is queued.
func (s *Scheduler) Claim(ctx context.Context, encoderID string, encoderType types.EncoderType) (job types.EncodingJob, signature string, ok bool, err error) {
	job, ok, err = s.repo.ClaimJob(ctx, encoderID, encoderType, s.cfg.LeaseDuration)
	if err != nil || !ok {
		return types.EncodingJob{}, "", false, err
	}
	signature = s.leaseSignature(job.ID, encoderID, *job.LeaseExpiresAt)
	return job, signature, true, nil
}

// RenewLease extends a job's lease by LeaseDuration. Agents are
// expected to call this at roughly 50% of lease age.
func (s *Scheduler) RenewLease(ctx context.Context, jobID uuid.UUID, encoderID, signature string) (types.EncodingJob, string, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return types.EncodingJob{}, "", err
	}
	if err := s.verifyLease(job, encoderID, signature); err != nil {
		return types.EncodingJob{}, "", err
	}
	expires := time.Now().Add(s.cfg.LeaseDuration)
	job.LeaseExpiresAt = &expires
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return types.EncodingJob{}, "", err
	}
	return job, s.leaseSignature(job.ID, encoderID, expires), nil
}

// Progress records an in-flight stage/percentage update from the
// claiming agent.
func (s *Scheduler) Progress(ctx context.Context, jobID uuid.UUID, encoderID, stage string, progress int, signature string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.verifyLease(job, encoderID, signature); err != nil {
		return err
	}
	job.Stage = stage
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	job.Progress = progress
	if stageStatus, ok := stageToStatus[stage]; ok {
		job.Status = stageStatus
	}
	return s.repo.UpdateJob(ctx, job)
}

// stageToStatus maps the agent-reported stage name onto the job's
// status enum for the in-flight phases of the lifecycle.
var stageToStatus = map[string]types.JobStatus{
	"downloading": types.JobDownloading,
	"encoding":    types.JobEncoding,
	"uploading":   types.JobUploading,
}

// Complete marks a job finished and fires the completion webhook.
func (s *Scheduler) Complete(ctx context.Context, jobID uuid.UUID, encoderID, outputCID string, qualities []string, processingTimeSec float64, outputSizeBytes *uint64, signature string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.verifyLease(job, encoderID, signature); err != nil {
		return err
	}

	now := time.Now()
	job.Status = types.JobCompleted
	job.Progress = 100
	job.OutputCID = outputCID
	job.Stage = "completed"
	job.CompletedAt = &now
	job.LeaseExpiresAt = nil
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return err
	}

	s.deliverWebhook(job, qualities, processingTimeSec, outputSizeBytes)
	return nil
}

// Fail handles an agent-reported terminal or retryable error: a
// retryable error under MaxAttempts returns the job to the queue behind
// an exponential backoff; otherwise it is marked failed permanently and
// the webhook fires.
func (s *Scheduler) Fail(ctx context.Context, jobID uuid.UUID, encoderID, reason string, retryable bool, signature string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.verifyLease(job, encoderID, signature); err != nil {
		return err
	}
	return s.retryOrFail(ctx, job, reason, retryable)
}

// retryOrFail implements the requeue-or-terminate branch shared by Fail
// and the lease reaper.
func (s *Scheduler) retryOrFail(ctx context.Context, job types.EncodingJob, reason string, retryable bool) error {
	if retryable && job.Attempts < job.MaxAttempts {
		job.Status = types.JobQueued
		job.AssignedEncoderID = ""
		job.EncoderType = ""
		job.LeaseExpiresAt = nil
		job.ErrorMessage = reason
		job.NotBefore = time.Now().Add(backoffFor(job.Attempts, s.cfg.BaseBackoff, s.cfg.MaxBackoff))
		return s.repo.UpdateJob(ctx, job)
	}

	job.Status = types.JobFailed
	job.ErrorMessage = reason
	job.LeaseExpiresAt = nil
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return err
	}
	s.deliverWebhook(job, nil, 0, nil)
	return nil
}

// backoffFor computes min(2^attempts * baseBackoff, maxBackoff).
func backoffFor(attempts int, base, max time.Duration) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts))) * base
	if d > max {
		return max
	}
	return d
}

// reapExpiredLeases scans for jobs whose lease has expired while still
// in a leased status and treats each as a retryable failure with reason
// LEASE_EXPIRED.
func (s *Scheduler) reapExpiredLeases() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReapInterval)
	defer cancel()

	expired, err := s.repo.ListExpiredLeases(ctx, time.Now())
	if err != nil {
		if s.logger != nil {
			s.logger.Println("jobqueue: reaper list error:", err)
		}
		return
	}
	for _, job := range expired {
		if err := s.retryOrFail(ctx, job, "LEASE_EXPIRED", true); err != nil && s.logger != nil {
			s.logger.Println("jobqueue: reaper requeue error for job", job.ID, ":", err)
		}
	}
}

// webhookPayload is the best-effort completion/failure notification body.
type webhookPayload struct {
	JobID             uuid.UUID `json:"jobId"`
	Owner             string    `json:"owner"`
	Permlink          string    `json:"permlink"`
	Status            types.JobStatus `json:"status"`
	OutputCID         string    `json:"outputCid,omitempty"`
	Qualities         []string  `json:"qualitiesEncoded,omitempty"`
	ProcessingTimeSec float64   `json:"processingTimeSec,omitempty"`
	OutputSizeBytes   *uint64   `json:"outputSizeBytes,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
}

// deliverWebhook fires a best-effort notification if WebhookURL is set.
// Delivery failures are logged, not retried.
func (s *Scheduler) deliverWebhook(job types.EncodingJob, qualities []string, processingTimeSec float64, outputSizeBytes *uint64) {
	if s.cfg.WebhookURL == "" {
		return
	}
	payload := webhookPayload{
		JobID:             job.ID,
		Owner:             job.Owner,
		Permlink:          job.Permlink,
		Status:            job.Status,
		OutputCID:         job.OutputCID,
		Qualities:         qualities,
		ProcessingTimeSec: processingTimeSec,
		OutputSizeBytes:   outputSizeBytes,
		ErrorMessage:      job.ErrorMessage,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Println("jobqueue: webhook marshal error:", err)
		}
		return
	}

	go func() {
		timeout := s.cfg.WebhookTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, strings.NewReader(string(body)))
		if err != nil {
			if s.logger != nil {
				s.logger.Println("jobqueue: webhook request build error:", err)
			}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "storage-coordinator-agent")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if s.logger != nil {
				s.logger.Println("jobqueue: webhook delivery failed for job", job.ID, ":", err)
			}
			return
		}
		resp.Body.Close()
	}()
}

// ListJobs passes through to the Repository.
func (s *Scheduler) ListJobs(ctx context.Context, owner string) ([]types.EncodingJob, error) {
	return s.repo.ListJobs(ctx, owner)
}

// GetJob passes through to the Repository.
func (s *Scheduler) GetJob(ctx context.Context, id uuid.UUID) (types.EncodingJob, error) {
	return s.repo.GetJob(ctx, id)
}

// Stats returns current queue counters.
func (s *Scheduler) Stats(ctx context.Context) (modules.QueueStats, error) {
	return s.repo.QueueStats(ctx)
}
