package gcp

import (
	"context"
	"fmt"
	"log/slog"

	run "cloud.google.com/go/run/apiv2"
	"cloud.google.com/go/run/apiv2/runpb"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/models"
)

// JobRunner dispatches the out-of-band transfer worker as a Cloud Run Job
// execution. The job definition carries the long timeout budget and the
// bounded retry count; this client only hands it the per-item arguments and
// returns once the execution is accepted.
type JobRunner struct {
	client  *run.JobsClient
	jobName string // projects/{project}/locations/{location}/jobs/{job}
}

// NewJobRunner creates the transfer job dispatcher for the given fully
// qualified job name.
func NewJobRunner(ctx context.Context, jobName string) (*JobRunner, error) {
	if jobName == "" {
		return nil, fmt.Errorf("jobName must be provided to create a job runner")
	}
	client, err := run.NewJobsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create run jobs client: %w", err)
	}
	return &JobRunner{client: client, jobName: jobName}, nil
}

// RunTransfer starts one execution of the transfer job carrying the item's
// identity and destination as container arguments. Fire-and-forget: the
// returned operation is not awaited.
func (r *JobRunner) RunTransfer(ctx context.Context, args models.TransferArgs) error {
	req := &runpb.RunJobRequest{
		Name: r.jobName,
		Overrides: &runpb.RunJobRequest_Overrides{
			ContainerOverrides: []*runpb.RunJobRequest_Overrides_ContainerOverride{
				{
					Args: []string{
						"--file-id", args.FileID,
						"--name", args.Name,
						"--parent", args.ParentFolderID,
					},
				},
			},
		},
	}
	if _, err := r.client.RunJob(ctx, req); err != nil {
		return fmt.Errorf("failed to start transfer job for %s: %w", args.Name, err)
	}
	slog.Info("Dispatched out-of-band transfer job.", "item", args.Name, "job", r.jobName)
	return nil
}

func (r *JobRunner) Close() error {
	return r.client.Close()
}
