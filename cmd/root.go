package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanq16/chunkfetch/internal/output"
	"github.com/tanq16/chunkfetch/internal/scheduler"
	"github.com/tanq16/chunkfetch/internal/utils"
)

// upper bound on connections across all parallel links
const maxTotalConnections = 64

var (
	connections   int
	workers       int
	retries       int
	timeout       time.Duration
	stallTimeout  time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	preallocate   bool
	force         bool
	debug         bool
	logFile       string
)

var ChunkfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "chunkfetch",
	Short:   "chunkfetch is a concurrent chunked file downloader",
	Version: ChunkfetchVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := utils.InitLogger(debug, logFile)
		if err != nil {
			return fmt.Errorf("error opening log file: %v", err)
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

var logCloser interface{ Close() error }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", utils.DefaultConnections, "Number of connections per download (above 5 enables high-thread-mode)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of links to download in parallel")
	rootCmd.PersistentFlags().IntVarP(&retries, "retries", "r", utils.DefaultMaxRetries, "Attempts per chunk before the download fails")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection and response header timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVar(&stallTimeout, "stall-timeout", time.Minute, "Abort a chunk attempt when no data arrives for this long")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser UA)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&preallocate, "preallocate", false, "Reserve the full file size on disk before downloading")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "Overwrite an existing output file instead of renaming")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", utils.LogFile, "Log file path (empty logs to stderr)")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newS3Cmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newProbeCmd())
}

func buildHTTPConfig() utils.HTTPClientConfig {
	ua := userAgent
	if ua == "randomize" {
		ua = utils.GetRandomUserAgent()
	}
	proxy, user, pass := proxyURL, proxyUsername, proxyPassword
	// credentials embedded in the proxy URL are used unless given explicitly
	if parsed, err := u.Parse(proxy); err == nil && parsed.User != nil && user == "" {
		user = parsed.User.Username()
		if password, set := parsed.User.Password(); set {
			pass = password
		}
		parsed.User = nil
		proxy = parsed.String()
	}
	return utils.HTTPClientConfig{
		Timeout:        timeout,
		StallTimeout:   stallTimeout,
		KATimeout:      kaTimeout,
		ProxyURL:       proxy,
		ProxyUsername:  user,
		ProxyPassword:  pass,
		UserAgent:      ua,
		Headers:        utils.ParseHeaderArgs(headers),
		HighThreadMode: connections > 5,
	}
}

// newJob fills the shared settings; connections are capped so that all
// parallel links together stay under maxTotalConnections.
func newJob(jobType, link, outputPath string) utils.FetchJob {
	perLink := connections
	if workers > 1 && workers*perLink > maxTotalConnections {
		perLink = max(maxTotalConnections/workers, 1)
	}
	return utils.FetchJob{
		JobType:          jobType,
		URL:              link,
		OutputPath:       outputPath,
		Connections:      perLink,
		MaxRetries:       retries,
		Preallocate:      preallocate,
		Force:            force,
		HTTPClientConfig: buildHTTPConfig(),
		Metadata:         make(map[string]any),
	}
}

// runJobs executes the jobs until done or interrupted and exits non-zero if
// any of them failed.
func runJobs(jobs []utils.FetchJob) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	results := scheduler.Run(ctx, jobs, scheduler.Config{Workers: workers})
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.Error().Str("op", "cmd").Err(r.Err).Msgf("Failed %s", r.URL)
		}
	}
	if failed > 0 {
		output.PrintError(fmt.Sprintf("Encountered %d failed download(s)", failed))
		if logCloser != nil {
			logCloser.Close()
		}
		os.Exit(1)
	}
	output.PrintSuccess(fmt.Sprintf("All %d download(s) completed", len(results)))
}
