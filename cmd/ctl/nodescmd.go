package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spknetwork/storage-coordinator/types"
)

var nodeStatus string

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "view storage node reputation and earnings",
	Run:   nodesListHandler,
}

var nodesListCmd = &cobra.Command{
	Use:   "list",
	Short: "list storage nodes, optionally filtered by status",
	Run:   nodesListHandler,
}

func nodesListHandler(cmd *cobra.Command, args []string) {
	call := "/nodes"
	if nodeStatus != "" {
		call += "?status=" + nodeStatus
	}
	var nodes []types.StorageNode
	if err := getAPI(call, &nodes); err != nil {
		die("Could not list nodes:", err)
	}
	if len(nodes) == 0 {
		fmt.Println("No nodes found.")
		return
	}
	for _, n := range nodes {
		fmt.Printf("%s  %-10s  rep=%-3d  fails=%-2d  earned=%s  %s\n", n.ID, n.Status, n.Reputation, n.ConsecutiveFails, n.TotalEarned, n.OperatorName)
	}
}
