// Package k8s launches mailbox sync runs as Kubernetes Jobs, so long
// backfills run outside the API pod.
package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Client wraps the Kubernetes client
type Client struct {
	clientset *kubernetes.Clientset
	namespace string
}

// NewClient creates a new Kubernetes client
// If namespace is empty, defaults to "mailchat"
func NewClient(namespace string) (*Client, error) {
	if namespace == "" {
		namespace = "mailchat"
	}

	config, err := getKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{
		clientset: clientset,
		namespace: namespace,
	}, nil
}

// getKubeConfig gets the Kubernetes configuration
func getKubeConfig() (*rest.Config, error) {
	// Try in-cluster config first (when running inside Kubernetes)
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	// Fall back to kubeconfig file
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	// Check if KUBECONFIG env var is set
	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	return config, nil
}

// SyncJobOptions carries the per-run parameters baked into the Job
type SyncJobOptions struct {
	MailboxID  string
	Query      string
	Max        int
	FullRescan bool
}

// CreateSyncJob creates a Kubernetes Job that runs one mailbox sync
func (c *Client) CreateSyncJob(ctx context.Context, jobName, containerImage string, opts SyncJobOptions) error {
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: c.namespace,
			Labels: map[string]string{
				"app":          "mailbox-sync",
				"job-type":     "sync",
				"triggered-by": "api",
			},
		},
		Spec: batchv1.JobSpec{
			// A retried pod resumes cheaply: committed pages are skipped
			// by content hash
			BackoffLimit:            int32Ptr(2),
			TTLSecondsAfterFinished: int32Ptr(86400),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app":      "mailbox-sync",
						"job-type": "sync",
					},
				},
				Spec: c.buildPodSpec(containerImage, opts),
			},
		},
	}

	// Create the job
	_, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// buildPodSpec builds the pod spec for the sync job
func (c *Client) buildPodSpec(containerImage string, opts SyncJobOptions) corev1.PodSpec {
	command := []string{"/app/bin/sync-mailbox", "-mailbox", opts.MailboxID}
	if opts.Query != "" {
		command = append(command, "-query", opts.Query)
	}
	if opts.Max > 0 {
		command = append(command, "-limit", fmt.Sprintf("%d", opts.Max))
	}
	if opts.FullRescan {
		command = append(command, "-reset")
	}

	return corev1.PodSpec{
		RestartPolicy:      corev1.RestartPolicyNever,
		ServiceAccountName: "mailbox-sync",
		Containers: []corev1.Container{
			{
				Name:    "sync-mailbox",
				Image:   containerImage,
				Command: command,
				// Non-secret settings (vector backend, chunking, retry)
				// come from the shared config map
				EnvFrom: []corev1.EnvFromSource{
					{
						ConfigMapRef: &corev1.ConfigMapEnvSource{
							LocalObjectReference: corev1.LocalObjectReference{Name: "mailchat-config"},
							Optional:             boolPtr(true),
						},
					},
				},
				Env: []corev1.EnvVar{
					secretEnv("DATABASE_URL", "mailchat-secrets", "database-url"),
					secretEnv("OPENAI_API_KEY", "mailchat-secrets", "openai-api-key"),
					secretEnv("GOOGLE_CLIENT_ID", "google-oauth", "client-id"),
					secretEnv("GOOGLE_CLIENT_SECRET", "google-oauth", "client-secret"),
					secretEnv("GOOGLE_REFRESH_TOKEN", "google-oauth", "refresh-token"),
				},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("256Mi"),
						corev1.ResourceCPU:    resourceQuantity("250m"),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("1Gi"),
						corev1.ResourceCPU:    resourceQuantity("1000m"),
					},
				},
			},
		},
	}
}

// GetJobStatus gets the status of a job
func (c *Client) GetJobStatus(ctx context.Context, jobName string) (*batchv1.Job, error) {
	job, err := c.clientset.BatchV1().Jobs(c.namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListSyncJobs lists the sync jobs in the namespace, newest first in the
// API server's order
func (c *Client) ListSyncJobs(ctx context.Context) ([]batchv1.Job, error) {
	jobs, err := c.clientset.BatchV1().Jobs(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=mailbox-sync",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs.Items, nil
}

// DeleteJob deletes a job
func (c *Client) DeleteJob(ctx context.Context, jobName string) error {
	deletePolicy := metav1.DeletePropagationForeground
	err := c.clientset.BatchV1().Jobs(c.namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &deletePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Helper functions

func int32Ptr(i int32) *int32 {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func resourceQuantity(value string) resource.Quantity {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		// Return zero quantity on error
		return resource.Quantity{}
	}
	return qty
}
