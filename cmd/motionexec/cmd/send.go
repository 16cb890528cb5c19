package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
	"github.com/teslashibe/go-motionexec/pkg/web"
)

var (
	sendGroup       string
	sendEndEffector bool
	sendWait        bool
	sendPositions   bool
)

var sendCmd = &cobra.Command{
	Use:   "send FILE",
	Short: "Submit a CSV trajectory to a running service",
	Long: `Reads a trajectory in the archive format (time_from_start followed by
<joint>_pos,<joint>_vel,<joint>_acc columns) and submits it. The command
blocks while the service waits at the operator checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendGroup, "group", "g", "arm", "planning group the trajectory belongs to")
	sendCmd.Flags().BoolVar(&sendEndEffector, "end-effector", false, "the group is an end effector")
	sendCmd.Flags().BoolVarP(&sendWait, "wait", "w", false, "wait for execution to finish")
	sendCmd.Flags().BoolVar(&sendPositions, "positions-only", false, "drop velocities and accelerations before sending")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		printError("open trajectory", err)
		return err
	}
	defer f.Close()

	t, err := trajectory.ReadCSV(f)
	if err != nil {
		printError("read trajectory", err)
		return err
	}
	if sendPositions {
		t.ClearDynamics()
	}
	if verbose {
		fmt.Printf("Sending %d points over %s for %q\n", t.Len(), t.Duration(), sendGroup)
	}

	req := web.TrajectoryRequest{
		Group:       sendGroup,
		EndEffector: sendEndEffector,
		Wait:        sendWait,
		Trajectory:  protocol.FromTrajectory(t),
	}
	var resp web.DispatchResponse
	if err := apiPost(cmd.Context(), "/api/trajectories", req, &resp); err != nil {
		printError("send trajectory", err)
		return err
	}
	fmt.Printf("%s: %d points, %.3fs (%s)\n", resp.Status, resp.Points, resp.Duration, resp.Mode)
	return nil
}
