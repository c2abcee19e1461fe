package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cwbudde/eemfit/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL), cmd.OutOrStdout())
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID, cmd.OutOrStdout())
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string, out io.Writer) error {
	var jobs []server.Job
	if _, err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s (%s)\n", job.State, job.Phase)
		fmt.Fprintf(out, "  Training set: %s\n", job.Config.SDFPath)
		if job.Stats.R2 > 0 {
			fmt.Fprintf(out, "  R2: %.4f  RMSD: %.4f\n", job.Stats.R2, job.Stats.RMSD)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getJobStatus(url, jobID string, out io.Writer) error {
	var status server.JobStatus
	code, err := getJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintf(out, "Phase: %s\n", status.Phase)
	fmt.Fprintln(out)

	c := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Structures: %s\n", c.SDFPath)
	fmt.Fprintf(out, "  Charges: %s\n", c.CHGPath)
	fmt.Fprintf(out, "  Atom types: %s\n", c.AtomTypes)
	fmt.Fprintf(out, "  Population: %d (%s, seed %d)\n", c.PopulationSize, c.Sampler, c.Seed)
	fmt.Fprintf(out, "  Bounds: %s\n", c.Bounds)
	fmt.Fprintf(out, "  Local search: %s (%d/%d iterations)\n", c.Method, c.PartialIterations, c.FinalIterations)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Minimized candidates: %d\n", status.Minimized)
	if status.Stats.R2 > 0 {
		fmt.Fprintf(out, "  R: %.4f  R2: %.4f  RMSD: %.4f  Spearman: %.4f\n",
			status.Stats.R, status.Stats.R2, status.Stats.RMSD, status.Stats.Spearman)
	}
	fmt.Fprintf(out, "  Elapsed: %.1fs\n", status.Elapsed)

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}
