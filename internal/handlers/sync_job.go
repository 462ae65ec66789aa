package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mailchat/internal/config"
	"mailchat/internal/k8s"

	"github.com/labstack/echo/v4"
	batchv1 "k8s.io/api/batch/v1"
)

// TriggerSyncJobRequest represents the request to launch a sync job
type TriggerSyncJobRequest struct {
	MailboxID  string `json:"mailbox_id,omitempty"`  // Defaults to the configured mailbox
	Query      string `json:"query,omitempty"`       // Gmail search filter for backfill walks
	Max        int    `json:"max,omitempty"`         // Cap on fetched messages
	FullRescan bool   `json:"full_rescan,omitempty"` // Reset the checkpoint before syncing
}

// TriggerSyncJobResponse represents the response from launching a sync job
type TriggerSyncJobResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobName string `json:"job_name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobStatus represents the status of a Kubernetes job
type JobStatus struct {
	JobName        string  `json:"job_name"`
	Status         string  `json:"status"`
	Active         int32   `json:"active"`
	Succeeded      int32   `json:"succeeded"`
	Failed         int32   `json:"failed"`
	StartTime      *string `json:"start_time,omitempty"`
	CompletionTime *string `json:"completion_time,omitempty"`
}

// TriggerSyncJobHandler launches a Kubernetes Job that runs one mailbox sync
// @Summary Launch a sync job
// @Description Launches a Kubernetes Job that syncs the mailbox into the vector index out of process
// @Tags admin
// @Accept json
// @Produce json
// @Param request body TriggerSyncJobRequest false "Sync job parameters"
// @Success 200 {object} TriggerSyncJobResponse
// @Failure 400 {object} TriggerSyncJobResponse
// @Failure 500 {object} TriggerSyncJobResponse
// @Failure 503 {object} TriggerSyncJobResponse
// @Security BearerAuth
// @Router /api/admin/sync-jobs [post]
func TriggerSyncJobHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		fmt.Println("[SYNC_JOB] Received trigger request")

		if !cfg.K8sEnabled {
			return c.JSON(http.StatusServiceUnavailable, TriggerSyncJobResponse{
				Success: false,
				Error:   "Kubernetes job launcher is disabled (K8S_ENABLED=false)",
			})
		}

		var req TriggerSyncJobRequest
		if err := c.Bind(&req); err != nil {
			fmt.Printf("[SYNC_JOB] Invalid request: %v\n", err)
			return c.JSON(http.StatusBadRequest, TriggerSyncJobResponse{
				Success: false,
				Error:   "Invalid request body",
			})
		}

		mailboxID := req.MailboxID
		if mailboxID == "" {
			mailboxID = cfg.MailboxID
		}
		if mailboxID == "" {
			return c.JSON(http.StatusBadRequest, TriggerSyncJobResponse{
				Success: false,
				Error:   "mailbox_id is required (no default mailbox configured)",
			})
		}

		// Generate unique job name with timestamp
		jobName := fmt.Sprintf("%s-%d", cfg.SyncJobPrefix, time.Now().Unix())

		k8sClient, err := k8s.NewClient(cfg.K8sNamespace)
		if err != nil {
			fmt.Printf("[SYNC_JOB] Failed to create Kubernetes client: %v\n", err)
			return c.JSON(http.StatusInternalServerError, TriggerSyncJobResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		opts := k8s.SyncJobOptions{
			MailboxID:  mailboxID,
			Query:      req.Query,
			Max:        req.Max,
			FullRescan: req.FullRescan,
		}

		if err := k8sClient.CreateSyncJob(ctx, jobName, cfg.SyncJobImage, opts); err != nil {
			fmt.Printf("[SYNC_JOB] Failed to create job: %v\n", err)
			return c.JSON(http.StatusInternalServerError, TriggerSyncJobResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to create Kubernetes job: %v", err),
			})
		}

		fmt.Printf("[SYNC_JOB] Successfully created job: %s\n", jobName)

		return c.JSON(http.StatusOK, TriggerSyncJobResponse{
			Success: true,
			Message: "Sync job launched successfully",
			JobName: jobName,
		})
	}
}

// GetSyncJobStatusHandler gets the status of a sync job
// @Summary Get sync job status
// @Description Gets the current status of a launched sync job
// @Tags admin
// @Accept json
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} JobStatus
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /api/admin/sync-jobs/{jobName} [get]
func GetSyncJobStatusHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobName := c.Param("jobName")

		fmt.Printf("[SYNC_JOB] Getting status for job: %s\n", jobName)

		if !cfg.K8sEnabled {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "Kubernetes job launcher is disabled (K8S_ENABLED=false)",
			})
		}

		k8sClient, err := k8s.NewClient(cfg.K8sNamespace)
		if err != nil {
			fmt.Printf("[SYNC_JOB] Failed to create Kubernetes client: %v\n", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := k8sClient.GetJobStatus(ctx, jobName)
		if err != nil {
			fmt.Printf("[SYNC_JOB] Failed to get job status: %v\n", err)
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": fmt.Sprintf("Job not found: %v", err),
			})
		}

		return c.JSON(http.StatusOK, jobStatusOf(job))
	}
}

// ListSyncJobsHandler lists sync jobs in the configured namespace
// @Summary List sync jobs
// @Description Lists the sync jobs in the configured namespace with their derived status
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Security BearerAuth
// @Router /api/admin/sync-jobs [get]
func ListSyncJobsHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !cfg.K8sEnabled {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "Kubernetes job launcher is disabled (K8S_ENABLED=false)",
			})
		}

		k8sClient, err := k8s.NewClient(cfg.K8sNamespace)
		if err != nil {
			fmt.Printf("[SYNC_JOB] Failed to create Kubernetes client: %v\n", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		jobs, err := k8sClient.ListSyncJobs(ctx)
		if err != nil {
			fmt.Printf("[SYNC_JOB] Failed to list jobs: %v\n", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("Failed to list jobs: %v", err),
			})
		}

		statuses := make([]JobStatus, 0, len(jobs))
		for i := range jobs {
			statuses = append(statuses, jobStatusOf(&jobs[i]))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"jobs":  statuses,
			"count": len(statuses),
		})
	}
}

// jobStatusOf derives the API status view from a Kubernetes job
func jobStatusOf(job *batchv1.Job) JobStatus {
	status := "pending"
	if job.Status.Active > 0 {
		status = "running"
	} else if job.Status.Succeeded > 0 {
		status = "completed"
	} else if job.Status.Failed > 0 {
		status = "failed"
	}

	var startTime, completionTime *string
	if job.Status.StartTime != nil {
		st := job.Status.StartTime.Format(time.RFC3339)
		startTime = &st
	}
	if job.Status.CompletionTime != nil {
		ct := job.Status.CompletionTime.Format(time.RFC3339)
		completionTime = &ct
	}

	return JobStatus{
		JobName:        job.Name,
		Status:         status,
		Active:         job.Status.Active,
		Succeeded:      job.Status.Succeeded,
		Failed:         job.Status.Failed,
		StartTime:      startTime,
		CompletionTime: completionTime,
	}
}
