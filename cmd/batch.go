package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tanq16/chunkfetch/internal/output"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func newBatchCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Process multiple downloads from a YAML file",
		Long: `Process multiple downloads from a YAML list of entries:

  - link: https://example.com/video
    op: videos/first
  - link: s3://bucket/archive.tar
    type: s3`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := readBatchFile(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			jobs := buildJobsFromBatch(entries, profile)
			if len(jobs) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			runJobs(jobs)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "default", "AWS profile for s3 entries")
	return cmd
}

func readBatchFile(path string) ([]utils.BatchEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var entries []utils.BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	return entries, nil
}

func buildJobsFromBatch(entries []utils.BatchEntry, profile string) []utils.FetchJob {
	var jobs []utils.FetchJob
	for i, entry := range entries {
		if entry.Link == "" {
			log.Warn().Str("op", "cmd/batch").Msgf("Entry %d has no link, skipping", i+1)
			continue
		}
		jobType := entry.Type
		if jobType == "" {
			jobType = utils.DetermineJobType(entry.Link)
		}
		job := newJob(jobType, entry.Link, entry.OutputPath)
		if jobType == "s3" {
			job.Metadata["profile"] = profile
		}
		jobs = append(jobs, job)
	}
	return jobs
}
