package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-motionexec/internal/httpc"
)

var (
	cfgFile   string
	serverURL string
	verbose   bool
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "motionexec",
	Short: "Gated dispatch of planned robot motions",
	Long: `motionexec sends already-planned joint trajectories and cartesian poses
to a robot, holding each trajectory at an operator checkpoint until the
operator releases it or autonomy is enabled.

Commands:
  serve              - run the dispatcher and operator API
  send               - submit a CSV trajectory to a running service
  pose               - publish a cartesian pose
  stop               - halt motion
  gate               - inspect and drive the operator checkpoint
  check-controllers  - verify trajectory controllers are running
  check-jumps        - report waypoint timing anomalies in a CSV trajectory`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "operator API of a running service")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout for client commands (0 waits indefinitely)")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}

// api calls the operator API of a running service.
func api(ctx context.Context, method, path string, in, out any) error {
	url := strings.TrimRight(serverURL, "/") + path
	return httpc.DoJSON(ctx, httpc.NewClient(timeout), method, url, in, out)
}

func apiGet(ctx context.Context, path string, out any) error {
	return api(ctx, http.MethodGet, path, nil, out)
}

func apiPost(ctx context.Context, path string, in, out any) error {
	return api(ctx, http.MethodPost, path, in, out)
}
