package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func newHTTPCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "http [URL] [--output OUTPUT_PATH]",
		Short: "Download file via HTTP/HTTPS",
		Long: `Download a file over HTTP/HTTPS in concurrent byte ranges.

The output path gives the directory and file name; the extension is taken
from the Content-Type the server reports. Servers without range support
are downloaded over a single connection.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runJobs([]utils.FetchJob{newJob("http", args[0], outputPath)})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	return cmd
}
