package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/web"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Inspect and drive the operator checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st gate.Status
		if err := apiGet(cmd.Context(), "/api/gate", &st); err != nil {
			printError("gate status", err)
			return err
		}
		printGate(st)
		return nil
	},
}

var gateReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Release the pending checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return postGate(cmd, "/api/gate/ready", nil)
	},
}

var gateAutonomousCmd = &cobra.Command{
	Use:       "autonomous on|off",
	Short:     "Toggle single-step autonomy",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return postGate(cmd, "/api/gate/autonomous", web.ToggleRequest{Enabled: &v})
	},
}

var gateFullCmd = &cobra.Command{
	Use:       "full on|off",
	Short:     "Toggle full autonomy",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return postGate(cmd, "/api/gate/full_autonomous", web.ToggleRequest{Enabled: &v})
	},
}

var gateStopClear bool

var gateStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Revoke autonomy and record a stop request",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := !gateStopClear
		return postGate(cmd, "/api/gate/stop", web.ToggleRequest{Enabled: &v})
	},
}

func init() {
	gateStopCmd.Flags().BoolVar(&gateStopClear, "clear", false, "clear the stop flag instead")
	gateCmd.AddCommand(gateReadyCmd, gateAutonomousCmd, gateFullCmd, gateStopCmd)
	rootCmd.AddCommand(gateCmd)
}

func postGate(cmd *cobra.Command, path string, body any) error {
	var st gate.Status
	if err := apiPost(cmd.Context(), path, body, &st); err != nil {
		printError("gate", err)
		return err
	}
	printGate(st)
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func printGate(st gate.Status) {
	fmt.Printf("autonomous:      %v\n", st.SingleStepAutonomous)
	fmt.Printf("full autonomous: %v\n", st.FullAutonomous)
	fmt.Printf("stop requested:  %v\n", st.StopRequested)
	if st.Waiting {
		fmt.Printf("waiting at:      %s\n", st.Checkpoint)
	}
	if st.NextStepReady {
		fmt.Println("next step ready")
	}
}
