package persist

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/types"
)

// Bucket names for the bbolt-backed Repository. One bucket per entity
// kind, keyed by the entity's uuid, except validators (keyed by
// username), assignments (fileID|nodeID) and payout line items
// (reportID|recipient).
var (
	bucketNodes       = []byte("Nodes")
	bucketFiles       = []byte("Files")
	bucketValidators  = []byte("Validators")
	bucketAssignments = []byte("Assignments")
	bucketChallenges  = []byte("Challenges")
	bucketJobs        = []byte("Jobs")
	bucketEncoders    = []byte("Encoders")
	bucketReports     = []byte("PayoutReports")
	bucketLineItems   = []byte("PayoutLineItems")
)

var allBuckets = [][]byte{
	bucketNodes, bucketFiles, bucketValidators, bucketAssignments,
	bucketChallenges, bucketJobs, bucketEncoders, bucketReports,
	bucketLineItems,
}

// dbMetadata names this repository's file format and version.
// OpenBoltRepository neither writes it into the bbolt file nor checks it
// on open, so the file itself carries no format stamp.
var dbMetadata = Metadata{Header: "Storage Coordinator Repository", Version: "0.1.0"}

// BoltRepository is the modules.Repository implementation backed by
// go.etcd.io/bbolt. Every write goes through a single bbolt read-write
// transaction, which is what makes ClaimJob and CreatePayoutReport
// atomic: bbolt transactions are already serialized by a single writer,
// so no extra locking is needed here.
type BoltRepository struct {
	db *bbolt.DB
}

// OpenBoltRepository opens (creating if necessary) the bbolt file at
// path and ensures every bucket this package uses exists.
func OpenBoltRepository(path string) (*BoltRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltRepository{db: db}, nil
}

// Close releases the underlying bbolt file.
func (r *BoltRepository) Close() error { return r.db.Close() }

func put(tx *bbolt.Tx, bucket []byte, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put(key, data)
}

func get(tx *bbolt.Tx, bucket []byte, key []byte, v interface{}) error {
	data := tx.Bucket(bucket).Get(key)
	if data == nil {
		return modules.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func idKey(id uuid.UUID) []byte { return []byte(id.String()) }

// --- Nodes ---

func (r *BoltRepository) CreateNode(ctx context.Context, n types.StorageNode) (types.StorageNode, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketNodes, idKey(n.ID), n)
	})
	return n, err
}

func (r *BoltRepository) GetNode(ctx context.Context, id uuid.UUID) (types.StorageNode, error) {
	var n types.StorageNode
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, bucketNodes, idKey(id), &n)
	})
	return n, err
}

func (r *BoltRepository) GetNodeByPeerID(ctx context.Context, peerID string) (types.StorageNode, error) {
	var found types.StorageNode
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketNodes).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var n types.StorageNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.PeerID == peerID {
				found = n
				return nil
			}
		}
		return modules.ErrNotFound
	})
	return found, err
}

func (r *BoltRepository) ListNodes(ctx context.Context, f modules.ListFilter) ([]types.StorageNode, error) {
	var out []types.StorageNode
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketNodes).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var n types.StorageNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if f.Status == "" || string(n.Status) == f.Status {
				out = append(out, n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Reputation != out[j].Reputation {
			return out[i].Reputation > out[j].Reputation
		}
		return out[i].LastSeen.Before(out[j].LastSeen)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (r *BoltRepository) UpdateNode(ctx context.Context, n types.StorageNode) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketNodes).Get(idKey(n.ID)) == nil {
			return modules.ErrNotFound
		}
		return put(tx, bucketNodes, idKey(n.ID), n)
	})
}

// --- Files ---

func (r *BoltRepository) CreateFile(ctx context.Context, f types.File) (types.File, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing types.File
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.CID == f.CID {
				return modules.ErrConflict
			}
		}
		return put(tx, bucketFiles, idKey(f.ID), f)
	})
	return f, err
}

func (r *BoltRepository) GetFile(ctx context.Context, id uuid.UUID) (types.File, error) {
	var f types.File
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, bucketFiles, idKey(id), &f)
	})
	return f, err
}

func (r *BoltRepository) GetFileByCID(ctx context.Context, cid string) (types.File, error) {
	var found types.File
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var f types.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.CID == cid {
				found = f
				return nil
			}
		}
		return modules.ErrNotFound
	})
	return found, err
}

func (r *BoltRepository) ListFiles(ctx context.Context, f modules.ListFilter) ([]types.File, error) {
	var out []types.File
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketFiles).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var file types.File
			if err := json.Unmarshal(v, &file); err != nil {
				return err
			}
			if f.Status == "" || string(file.Status) == f.Status {
				out = append(out, file)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (r *BoltRepository) UpdateFile(ctx context.Context, f types.File) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketFiles).Get(idKey(f.ID)) == nil {
			return modules.ErrNotFound
		}
		return put(tx, bucketFiles, idKey(f.ID), f)
	})
}

// DeleteFile cascades the removal of every StorageAssignment and
// PoAChallenge referencing fileID before removing the file row itself.
func (r *BoltRepository) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketFiles).Get(idKey(fileID)) == nil {
			return modules.ErrNotFound
		}

		ab := tx.Bucket(bucketAssignments)
		var assignmentKeys [][]byte
		ac := ab.Cursor()
		for k, v := ac.First(); k != nil; k, v = ac.Next() {
			var a types.StorageAssignment
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.FileID == fileID {
				assignmentKeys = append(assignmentKeys, append([]byte{}, k...))
			}
		}
		for _, k := range assignmentKeys {
			if err := ab.Delete(k); err != nil {
				return err
			}
		}

		cb := tx.Bucket(bucketChallenges)
		var challengeKeys [][]byte
		cc := cb.Cursor()
		for k, v := cc.First(); k != nil; k, v = cc.Next() {
			var c types.PoAChallenge
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.FileID == fileID {
				challengeKeys = append(challengeKeys, append([]byte{}, k...))
			}
		}
		for _, k := range challengeKeys {
			if err := cb.Delete(k); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketFiles).Delete(idKey(fileID))
	})
}

// --- Validators ---

func (r *BoltRepository) GetValidator(ctx context.Context, username string) (types.Validator, error) {
	var v types.Validator
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, bucketValidators, []byte(username), &v)
	})
	return v, err
}

func (r *BoltRepository) UpsertValidator(ctx context.Context, v types.Validator) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketValidators, []byte(v.Username), v)
	})
}

// --- Storage assignments ---

func assignmentKey(fileID, nodeID uuid.UUID) []byte {
	return []byte(fileID.String() + "|" + nodeID.String())
}

func (r *BoltRepository) GetAssignment(ctx context.Context, fileID, nodeID uuid.UUID) (types.StorageAssignment, error) {
	var a types.StorageAssignment
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, bucketAssignments, assignmentKey(fileID, nodeID), &a)
	})
	return a, err
}

func (r *BoltRepository) UpsertAssignment(ctx context.Context, a types.StorageAssignment) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketAssignments, assignmentKey(a.FileID, a.NodeID), a)
	})
}

// --- PoA challenges ---

func (r *BoltRepository) CreateChallenge(ctx context.Context, c types.PoAChallenge) (types.PoAChallenge, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketChallenges, idKey(c.ID), c)
	})
	return c, err
}

func (r *BoltRepository) UpdateChallengeResult(ctx context.Context, id uuid.UUID, result types.ChallengeResult, failReason string, response *string, latencyMs *int64) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		var c types.PoAChallenge
		if err := get(tx, bucketChallenges, idKey(id), &c); err != nil {
			return err
		}
		c.Result = result
		c.FailReason = failReason
		c.Response = response
		c.LatencyMs = latencyMs
		return put(tx, bucketChallenges, idKey(id), c)
	})
}

func (r *BoltRepository) ListChallenges(ctx context.Context, validatorID uuid.UUID, limit int) ([]types.PoAChallenge, error) {
	var out []types.PoAChallenge
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketChallenges).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ch types.PoAChallenge
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			if ch.ValidatorID == validatorID {
				out = append(out, ch)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *BoltRepository) ListChallengesInWindow(ctx context.Context, start, end time.Time) ([]types.PoAChallenge, error) {
	var out []types.PoAChallenge
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketChallenges).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ch types.PoAChallenge
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			if !ch.CreatedAt.Before(start) && !ch.CreatedAt.After(end) {
				out = append(out, ch)
			}
		}
		return nil
	})
	return out, err
}

// --- Encoding jobs ---

func (r *BoltRepository) EnqueueJob(ctx context.Context, j types.EncodingJob) (types.EncodingJob, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing types.EncodingJob
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Owner == j.Owner && existing.Permlink == j.Permlink {
				return modules.ErrConflict
			}
		}
		return put(tx, bucketJobs, idKey(j.ID), j)
	})
	return j, err
}

func (r *BoltRepository) GetJob(ctx context.Context, id uuid.UUID) (types.EncodingJob, error) {
	var j types.EncodingJob
	err := r.db.View(func(tx *bbolt.Tx) error {
		return get(tx, bucketJobs, idKey(id), &j)
	})
	return j, err
}

func (r *BoltRepository) ListJobs(ctx context.Context, owner string) ([]types.EncodingJob, error) {
	var out []types.EncodingJob
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j types.EncodingJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if owner == "" || j.Owner == owner {
				out = append(out, j)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// jobPriorityLess orders the claim queue: shorts float to the top, then
// oldest first.
func jobPriorityLess(a, b types.EncodingJob) bool {
	if a.IsShort != b.IsShort {
		return a.IsShort
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ClaimJob implements the atomic claim-one-queued-job operation: it
// runs inside a single bbolt read-write transaction, so two concurrent
// callers are serialized by bbolt's single-writer guarantee and can
// never both observe the same job as queued.
func (r *BoltRepository) ClaimJob(ctx context.Context, encoderID string, encoderType types.EncoderType, leaseDuration time.Duration) (types.EncodingJob, bool, error) {
	var claimed types.EncodingJob
	var ok bool
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var best types.EncodingJob
		var bestKey []byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j types.EncodingJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Status != types.JobQueued {
				continue
			}
			if !j.NotBefore.IsZero() && j.NotBefore.After(time.Now()) {
				continue
			}
			if bestKey == nil || jobPriorityLess(j, best) {
				best = j
				bestKey = append([]byte{}, k...)
			}
		}
		if bestKey == nil {
			return nil
		}

		now := time.Now()
		expires := now.Add(leaseDuration)
		best.Status = types.JobAssigned
		best.AssignedEncoderID = encoderID
		best.EncoderType = encoderType
		best.LeaseExpiresAt = &expires
		best.Attempts++

		if err := put(tx, bucketJobs, bestKey, best); err != nil {
			return err
		}
		claimed = best
		ok = true
		return nil
	})
	return claimed, ok, err
}

func (r *BoltRepository) UpdateJob(ctx context.Context, j types.EncodingJob) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketJobs).Get(idKey(j.ID)) == nil {
			return modules.ErrNotFound
		}
		return put(tx, bucketJobs, idKey(j.ID), j)
	})
}

func (r *BoltRepository) ListExpiredLeases(ctx context.Context, now time.Time) ([]types.EncodingJob, error) {
	var out []types.EncodingJob
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j types.EncodingJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Status.IsLeased() && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now) {
				out = append(out, j)
			}
		}
		return nil
	})
	return out, err
}

func (r *BoltRepository) QueueStats(ctx context.Context) (modules.QueueStats, error) {
	var stats modules.QueueStats
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j types.EncodingJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			switch j.Status {
			case types.JobQueued:
				stats.Queued++
			case types.JobAssigned:
				stats.Assigned++
			case types.JobDownloading, types.JobEncoding, types.JobUploading:
				stats.Processing++
			case types.JobCompleted:
				stats.Completed++
			case types.JobFailed:
				stats.Failed++
			}
		}
		return nil
	})
	stats.TotalPending = stats.Queued + stats.Assigned + stats.Processing
	return stats, err
}

// --- Encoder nodes ---

func (r *BoltRepository) UpsertEncoderNode(ctx context.Context, e types.EncoderNode) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketEncoders, idKey(e.ID), e)
	})
}

func (r *BoltRepository) ListEncoderNodes(ctx context.Context) ([]types.EncoderNode, error) {
	var out []types.EncoderNode
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEncoders).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e types.EncoderNode
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// --- Payouts ---

// CreatePayoutReport inserts report and items in a single bbolt
// transaction: no reader ever observes a report
// without its line items.
func (r *BoltRepository) CreatePayoutReport(ctx context.Context, report types.PayoutReport, items []types.PayoutLineItem) (types.PayoutReport, []types.PayoutLineItem, error) {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if err := put(tx, bucketReports, idKey(report.ID), report); err != nil {
			return err
		}
		for i, item := range items {
			item.ReportID = report.ID
			items[i] = item
			key := []byte(report.ID.String() + "|" + item.Recipient)
			if err := put(tx, bucketLineItems, key, item); err != nil {
				return err
			}
		}
		return nil
	})
	return report, items, err
}

func (r *BoltRepository) GetPayoutReport(ctx context.Context, id uuid.UUID) (types.PayoutReport, []types.PayoutLineItem, error) {
	var report types.PayoutReport
	var items []types.PayoutLineItem
	err := r.db.View(func(tx *bbolt.Tx) error {
		if err := get(tx, bucketReports, idKey(id), &report); err != nil {
			return err
		}
		c := tx.Bucket(bucketLineItems).Cursor()
		prefix := []byte(id.String() + "|")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var item types.PayoutLineItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	return report, items, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (r *BoltRepository) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, status types.PayoutStatus, executedTxHash string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		var report types.PayoutReport
		if err := get(tx, bucketReports, idKey(id), &report); err != nil {
			return err
		}
		report.Status = status
		if executedTxHash != "" {
			report.ExecutedTxHash = executedTxHash
			now := time.Now()
			report.ExecutedAt = &now
		}
		return put(tx, bucketReports, idKey(id), report)
	})
}

var _ modules.Repository = (*BoltRepository)(nil)
