package agent

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/spknetwork/storage-coordinator/persist"
	"github.com/spknetwork/storage-coordinator/types"
)

// Earnings is the agent's local earnings file. Unlike persist.SaveJSON's
// Metadata-wrapped snapshots, this file has no header envelope: a remote
// operator or UI may read it directly.
type Earnings struct {
	TotalHBD          float64    `json:"totalHbd"`
	ChallengesPassed  int        `json:"challengesPassed"`
	ChallengesFailed  int        `json:"challengesFailed"`
	ConsecutivePasses int        `json:"consecutivePasses"`
	LastChallengeTime *time.Time `json:"lastChallengeTime"`
}

// EarningsStore guards concurrent read/modify/write of the earnings
// file; the challenge responder and the status endpoint both touch it.
type EarningsStore struct {
	path string
	mu   sync.Mutex
}

// NewEarningsStore returns a store backed by path. It reads nothing at
// construction; every access reads the file afresh, so totals written
// before a daemon restart are kept.
func NewEarningsStore(path string) *EarningsStore {
	return &EarningsStore{path: path}
}

// Load reads the current earnings, returning a zero value if the file
// does not exist yet.
func (es *EarningsStore) Load() (Earnings, error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.load()
}

func (es *EarningsStore) load() (Earnings, error) {
	raw, err := os.ReadFile(es.path)
	if os.IsNotExist(err) {
		return Earnings{}, nil
	}
	if err != nil {
		return Earnings{}, err
	}
	var e Earnings
	if err := json.Unmarshal(raw, &e); err != nil {
		return Earnings{}, err
	}
	return e, nil
}

func (es *EarningsStore) save(e Earnings) error {
	out, err := json.Marshal(e)
	if err != nil {
		return err
	}
	sf, err := persist.NewSafeFile(es.path)
	if err != nil {
		return err
	}
	defer sf.Close()
	if _, err := sf.Write(out); err != nil {
		return err
	}
	return sf.Commit()
}

// RecordSuccess increments the pass counters and credits the base
// reward to the local earnings file.
func (es *EarningsStore) RecordSuccess(at time.Time) (Earnings, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	e, err := es.load()
	if err != nil {
		return Earnings{}, err
	}
	e.TotalHBD = e.TotalHBD + types.BaseReward.Float64()
	e.ChallengesPassed++
	e.ConsecutivePasses++
	e.LastChallengeTime = &at
	if err := es.save(e); err != nil {
		return Earnings{}, err
	}
	return e, nil
}

// RecordFailure increments the fail counter and resets the consecutive
// streak.
func (es *EarningsStore) RecordFailure(at time.Time) (Earnings, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	e, err := es.load()
	if err != nil {
		return Earnings{}, err
	}
	e.ChallengesFailed++
	e.ConsecutivePasses = 0
	e.LastChallengeTime = &at
	if err := es.save(e); err != nil {
		return Earnings{}, err
	}
	return e, nil
}

// AgentConfig is the agent's local config file.
type AgentConfig struct {
	HiveUsername *string `json:"hiveUsername"`
	IPFSRepoPath string  `json:"ipfsRepoPath"`
	APIPort      int     `json:"apiPort"`
	AutoStart    bool    `json:"autoStart"`
}

// ConfigStore guards read/modify/write of the agent config file.
type ConfigStore struct {
	path string
	mu   sync.Mutex
}

// NewConfigStore returns a store backed by path.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// Load reads the current config, returning def if the file does not
// exist yet.
func (cs *ConfigStore) Load(def AgentConfig) (AgentConfig, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	raw, err := os.ReadFile(cs.path)
	if os.IsNotExist(err) {
		return def, nil
	}
	if err != nil {
		return AgentConfig{}, err
	}
	var c AgentConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return AgentConfig{}, err
	}
	return c, nil
}

// Save atomically rewrites the config file.
func (cs *ConfigStore) Save(c AgentConfig) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out, err := json.Marshal(c)
	if err != nil {
		return err
	}
	sf, err := persist.NewSafeFile(cs.path)
	if err != nil {
		return err
	}
	defer sf.Close()
	if _, err := sf.Write(out); err != nil {
		return err
	}
	return sf.Commit()
}
