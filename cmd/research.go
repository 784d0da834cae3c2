package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/research"
)

var researchCmd = &cobra.Command{
	Use:   "research <identifier-or-url> <subject-name>",
	Short: "Run a deep research job on one person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		identifier := args[0]
		if id, err := model.NormalizeIdentifier(identifier); err == nil {
			identifier = id
		}

		job, err := env.Manager.Create(ctx, identifier, args[1])
		if err != nil {
			return eris.Wrap(err, "create research job")
		}
		fmt.Printf("Created job %s\n", job.ID)

		wait, _ := cmd.Flags().GetBool("wait")
		if !wait {
			return nil
		}

		// The CLI runs the job inline instead of through a worker pool.
		env.Manager.Execute(ctx, job.ID)

		done, err := pollJob(ctx, env.Manager, job.ID, 2*time.Minute)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(done); err != nil {
			return err
		}
		if done.Status == model.JobStatusFailed {
			return eris.Errorf("research failed: %s", done.ErrorDetail)
		}
		return nil
	},
}

func pollJob(ctx context.Context, m *research.Manager, jobID string, timeout time.Duration) (*model.ResearchJob, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := m.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if time.Now().After(deadline) {
			return nil, eris.Errorf("job %s still %s after %s", jobID, job.Status, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func init() {
	researchCmd.Flags().Bool("wait", true, "run the job and wait for the result")
	rootCmd.AddCommand(researchCmd)
}
