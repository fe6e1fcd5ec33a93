package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spknetwork/storage-coordinator/modules"
	"github.com/spknetwork/storage-coordinator/types"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "view and create encoding jobs",
	Run:   jobsListHandler,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "list encoding jobs, optionally filtered by owner",
	Run:   jobsListHandler,
}

func jobsListHandler(cmd *cobra.Command, args []string) {
	call := "/encoding/jobs"
	if jobOwner != "" {
		call += "?owner=" + jobOwner
	}
	var jobs []types.EncodingJob
	if err := getAPI(call, &jobs); err != nil {
		die("Could not list jobs:", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return
	}
	for _, j := range jobs {
		fmt.Printf("%s  %-10s  %-8s  %3d%%  %s/%s\n", j.ID, j.Status, j.Stage, j.Progress, j.Owner, j.Permlink)
	}
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create [owner] [permlink] [inputCid]",
	Short: "enqueue a new encoding job",
	Run:   wrap(jobscreate),
}

func jobscreate(owner, permlink, inputCID string) {
	body := fmt.Sprintf(`{"owner":%q,"permlink":%q,"inputCid":%q}`, owner, permlink, inputCID)
	var job types.EncodingJob
	if err := postAPI("/encoding/jobs", []byte(body), &job); err != nil {
		die("Could not create job:", err)
	}
	fmt.Println("Created job", job.ID)
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "show queue depth by status",
	Run:   wrap(queuestats),
}

func queuestats() {
	var stats modules.QueueStats
	if err := getAPI("/encoding/queue/stats", &stats); err != nil {
		die("Could not fetch queue stats:", err)
	}
	fmt.Printf("queued: %d  assigned: %d  processing: %d  completed: %d  failed: %d  pending: %d\n",
		stats.Queued, stats.Assigned, stats.Processing, stats.Completed, stats.Failed, stats.TotalPending)
}
