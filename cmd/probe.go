package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	fetchhttp "github.com/tanq16/chunkfetch/internal/downloaders/http"
	"github.com/tanq16/chunkfetch/internal/output"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func newProbeCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "probe [URL]",
		Short: "Show size, range support and save path without downloading",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client := utils.NewFetchHTTPClient(buildHTTPConfig())
			res, err := fetchhttp.Probe(context.Background(), client, args[0], outputPath, connections)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintHeader(res.URL)
			output.PrintDetail(fmt.Sprintf("  size:         %s (%d bytes)", humanize.IBytes(uint64(res.Size)), res.Size))
			output.PrintDetail(fmt.Sprintf("  ranges:       %t", res.RangeSupported))
			output.PrintDetail(fmt.Sprintf("  content type: %s", res.ContentType))
			output.PrintDetail(fmt.Sprintf("  save path:    %s", res.SavePath))
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path used to derive the save path")
	return cmd
}
