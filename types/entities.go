package types

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus is the lifecycle status of a StorageNode.
type NodeStatus string

const (
	NodeActive     NodeStatus = "active"
	NodeProbation  NodeStatus = "probation"
	NodeBanned     NodeStatus = "banned"
)

// StorageNode is a storage operator participating in the PoA network.
type StorageNode struct {
	ID               uuid.UUID  `json:"id"`
	PeerID           string     `json:"peerId"`
	OperatorName     string     `json:"operatorName"`
	Reputation       int        `json:"reputation"` // [0,100]
	Status           NodeStatus `json:"status"`
	ConsecutiveFails int        `json:"consecutiveFails"`
	TotalProofs      int        `json:"totalProofs"`
	FailedProofs     int        `json:"failedProofs"`
	TotalEarned      HBD        `json:"totalEarned"`
	LastSeen         time.Time  `json:"lastSeen"`
}

// FileStatus is the replication lifecycle status of a File.
type FileStatus string

const (
	FileSyncing  FileStatus = "syncing"
	FilePinned   FileStatus = "pinned"
	FileUnpinned FileStatus = "unpinned"
)

// File is a content-addressed object tracked for PoA challenges.
type File struct {
	ID               uuid.UUID  `json:"id"`
	CID              string     `json:"cid"`
	Name             string     `json:"name"`
	Size             uint64     `json:"size"`
	Uploader         string     `json:"uploader"`
	Status           FileStatus `json:"status"`
	ReplicationCount int        `json:"replicationCount"`
	Confidence       int        `json:"confidence"` // [0,100]
	PoAEnabled       bool       `json:"poaEnabled"`
	Earned           HBD        `json:"earned"`
}

// ValidatorStatus is the connectivity status of a Validator/Operator.
type ValidatorStatus string

const (
	ValidatorOnline  ValidatorStatus = "online"
	ValidatorOffline ValidatorStatus = "offline"
)

// Validator is an operator eligible to run the coordinator: an account
// whose witness rank in the external ledger is within the top cohort.
type Validator struct {
	ID          uuid.UUID       `json:"id"`
	Username    string          `json:"username"`
	WitnessRank int             `json:"witnessRank"`
	Status      ValidatorStatus `json:"status"`
	Performance int             `json:"performance"` // [0,100]
	Version     string          `json:"version"`
}

// ChallengeResult is the outcome of a PoAChallenge.
type ChallengeResult string

const (
	ChallengePending ChallengeResult = ""
	ChallengeSuccess ChallengeResult = "success"
	ChallengeFail    ChallengeResult = "fail"
	ChallengeTimeout ChallengeResult = "timeout"
)

// ChallengeData is the opaque payload sent to (or simulated for) a
// storage node.
type ChallengeData struct {
	Salt   string `json:"salt"`
	CID    string `json:"cid"`
	Method string `json:"method"`
}

// PoAChallenge is one challenge/response round. It is created with a
// null result and updated exactly once; rows are never deleted.
type PoAChallenge struct {
	ID            uuid.UUID       `json:"id"`
	ValidatorID   uuid.UUID       `json:"validatorId"`
	NodeID        uuid.UUID       `json:"nodeId"`
	FileID        uuid.UUID       `json:"fileId"`
	Salt          string          `json:"salt"`
	ChallengeData ChallengeData   `json:"challengeData"`
	Response      *string         `json:"response,omitempty"`
	Result        ChallengeResult `json:"result"`
	FailReason    string          `json:"failReason,omitempty"`
	LatencyMs     *int64          `json:"latencyMs,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// StorageAssignment tracks per (file,node) proof counters. Counters are
// monotone non-decreasing.
type StorageAssignment struct {
	FileID     uuid.UUID `json:"fileId"`
	NodeID     uuid.UUID `json:"nodeId"`
	ProofCount int       `json:"proofCount"`
	FailCount  int       `json:"failCount"`
	LastProofAt time.Time `json:"lastProofAt"`
}

// JobStatus is the lifecycle status of an EncodingJob.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobAssigned   JobStatus = "assigned"
	JobDownloading JobStatus = "downloading"
	JobEncoding   JobStatus = "encoding"
	JobUploading  JobStatus = "uploading"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsLeased reports whether a job status requires an active lease.
func (s JobStatus) IsLeased() bool {
	switch s {
	case JobAssigned, JobDownloading, JobEncoding, JobUploading:
		return true
	default:
		return false
	}
}

// EncoderType identifies the class of encoder agent handling a job.
type EncoderType string

const (
	EncoderDesktop   EncoderType = "desktop"
	EncoderBrowser   EncoderType = "browser"
	EncoderCommunity EncoderType = "community"
)

// EncodingJob is a transcoding job leased out to an external encoder
// agent.
type EncodingJob struct {
	ID                 uuid.UUID   `json:"id"`
	Owner              string      `json:"owner"`
	Permlink           string      `json:"permlink"`
	InputCID           string      `json:"inputCid"`
	OutputCID          string      `json:"outputCid,omitempty"`
	Status             JobStatus   `json:"status"`
	Progress           int         `json:"progress"` // [0,100]
	Stage              string      `json:"stage"`
	IsShort            bool        `json:"isShort"`
	EncoderType        EncoderType `json:"encoderType,omitempty"`
	AssignedEncoderID  string      `json:"assignedEncoderId,omitempty"`
	LeaseExpiresAt     *time.Time  `json:"leaseExpiresAt,omitempty"`
	Attempts           int         `json:"attempts"`
	MaxAttempts        int         `json:"maxAttempts"`
	ErrorMessage       string      `json:"errorMessage,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	CompletedAt        *time.Time  `json:"completedAt,omitempty"`
	// NotBefore gates re-claiming after a retryable failure: ClaimJob
	// skips an otherwise-queued job until this time has passed, which
	// is how the scheduler's exponential backoff is enforced without
	// a separate delay-queue entity.
	NotBefore          time.Time   `json:"notBefore,omitempty"`
}

// EncoderAvailability is the current availability state of an
// EncoderNode.
type EncoderAvailability string

const (
	EncoderAvailable EncoderAvailability = "available"
	EncoderBusy      EncoderAvailability = "busy"
	EncoderOffline   EncoderAvailability = "offline"
)

// EncoderNode is a transcoding agent capable of claiming EncodingJobs.
type EncoderNode struct {
	ID                uuid.UUID           `json:"id"`
	PeerID            string              `json:"peerId"`
	OperatorName      string              `json:"operatorName"`
	Endpoint          string              `json:"endpoint,omitempty"`
	EncoderType       EncoderType         `json:"encoderType"`
	Availability      EncoderAvailability `json:"availability"`
	JobsInProgress    int                 `json:"jobsInProgress"`
	JobsCompleted     int                 `json:"jobsCompleted"`
	ReputationScore   int                 `json:"reputationScore"`
	SuccessRate       float64             `json:"successRate"`
	LastHeartbeat     time.Time           `json:"lastHeartbeat"`
}

// PayoutStatus is the operator-driven lifecycle status of a
// PayoutReport.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutApproved PayoutStatus = "approved"
	PayoutExecuted PayoutStatus = "executed"
)

// PayoutReport is an immutable settlement document aggregating proven
// work over a time window.
type PayoutReport struct {
	ID              uuid.UUID    `json:"id"`
	PeriodStart     time.Time    `json:"periodStart"`
	PeriodEnd       time.Time    `json:"periodEnd"`
	TotalHBD        HBD          `json:"totalHbd"`
	RecipientCount  int          `json:"recipientCount"`
	Status          PayoutStatus `json:"status"`
	ExecutedTxHash  string       `json:"executedTxHash,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	ExecutedAt      *time.Time   `json:"executedAt,omitempty"`
}

// PayoutLineItem is one recipient's share of a PayoutReport, created
// atomically with its report.
type PayoutLineItem struct {
	ReportID    uuid.UUID `json:"reportId"`
	Recipient   string    `json:"recipient"`
	HBDAmount   HBD       `json:"hbdAmount"`
	ProofCount  int       `json:"proofCount"`
	SuccessRate float64   `json:"successRate"`
	Paid        bool      `json:"paid"`
	TxHash      string    `json:"txHash,omitempty"`
}

// Session is an operator authentication session.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}
