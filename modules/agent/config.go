package agent

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spknetwork/storage-coordinator/persist"
)

// PatchConfig rewrites the daemon repo's config file, merging in the
// fields the agent needs (API/gateway addresses on loopback, connection
// manager watermarks, pubsub enabled) while leaving every other key the
// daemon's own `init` wrote untouched. The config must be patched
// before the process is spawned, not after.
func PatchConfig(path string, cfg Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read daemon config: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse daemon config: %w", err)
	}

	addresses, _ := doc["Addresses"].(map[string]interface{})
	if addresses == nil {
		addresses = map[string]interface{}{}
	}
	addresses["API"] = fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", cfg.APIPort)
	addresses["Gateway"] = fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", cfg.GatewayPort)
	doc["Addresses"] = addresses

	swarm, _ := doc["Swarm"].(map[string]interface{})
	if swarm == nil {
		swarm = map[string]interface{}{}
	}
	connMgr, _ := swarm["ConnMgr"].(map[string]interface{})
	if connMgr == nil {
		connMgr = map[string]interface{}{}
	}
	connMgr["LowWater"] = cfg.ConnMgrLow
	connMgr["HighWater"] = cfg.ConnMgrHigh
	connMgr["GracePeriod"] = cfg.ConnMgrGrace.String()
	swarm["ConnMgr"] = connMgr
	doc["Swarm"] = swarm

	pubsub, _ := doc["Pubsub"].(map[string]interface{})
	if pubsub == nil {
		pubsub = map[string]interface{}{}
	}
	pubsub["Enabled"] = true
	doc["Pubsub"] = pubsub

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	sf, err := persist.NewSafeFile(path)
	if err != nil {
		return err
	}
	defer sf.Close()
	if _, err := sf.Write(out); err != nil {
		return err
	}
	return sf.Commit()
}
