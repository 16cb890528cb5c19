package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-motionexec/pkg/web"
)

var (
	posePosition    []float64
	poseOrientation []float64
)

var poseCmd = &cobra.Command{
	Use:   "pose",
	Short: "Publish a cartesian pose",
	Long:  `Publishes a single cartesian pose. Poses are not held at the operator checkpoint.`,
	RunE:  runPose,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Halt motion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost(cmd.Context(), "/api/stop", nil, nil); err != nil {
			printError("stop", err)
			return err
		}
		fmt.Println("stopped")
		return nil
	},
}

func init() {
	poseCmd.Flags().Float64SliceVar(&posePosition, "position", []float64{0, 0, 0}, "x,y,z")
	poseCmd.Flags().Float64SliceVar(&poseOrientation, "orientation", []float64{0, 0, 0, 1}, "quaternion x,y,z,w")
	rootCmd.AddCommand(poseCmd)
	rootCmd.AddCommand(stopCmd)
}

func runPose(cmd *cobra.Command, args []string) error {
	if len(posePosition) != 3 {
		return fmt.Errorf("--position needs 3 values, got %d", len(posePosition))
	}
	if len(poseOrientation) != 4 {
		return fmt.Errorf("--orientation needs 4 values, got %d", len(poseOrientation))
	}

	var req web.PoseRequest
	copy(req.Position[:], posePosition)
	copy(req.Orientation[:], poseOrientation)

	if err := apiPost(cmd.Context(), "/api/pose", req, nil); err != nil {
		printError("send pose", err)
		return err
	}
	fmt.Println("sent")
	return nil
}
