package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func newS3Cmd() *cobra.Command {
	var outputPath string
	var profile string

	cmd := &cobra.Command{
		Use:   "s3 [BUCKET/KEY or s3://BUCKET/KEY]",
		Short: "Download objects from AWS S3",
		Long: `Download an object from AWS S3 in concurrent parts.

Examples:
  chunkfetch s3 mybucket/path/to/file.zip
  chunkfetch s3 s3://mybucket/path/to/file.zip -o backups/file
  chunkfetch s3 mybucket/file.zip --profile myprofile`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			link := args[0]
			if !strings.HasPrefix(link, "s3://") {
				link = "s3://" + link
			}
			job := newJob("s3", link, outputPath)
			job.Metadata["profile"] = profile
			runJobs([]utils.FetchJob{job})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path")
	cmd.Flags().StringVar(&profile, "profile", "default", "AWS profile to use")
	return cmd
}
