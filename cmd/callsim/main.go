package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "callsim",
		Short: "Play the telephony platform against a running voice survey service",
	}

	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "Service base URL")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-request timeout")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(stepCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [callID]",
		Short: "Walk one caller through the whole survey",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := newSimulatorFromFlags(cmd)
			destination, _ := cmd.Flags().GetString("destination")
			replay, _ := cmd.Flags().GetBool("replay")

			callID := ""
			if len(args) == 1 {
				callID = args[0]
			}

			result, err := sim.Run(cmd.Context(), callID, destination, replay)
			if err != nil {
				return err
			}
			fmt.Printf("Call %s completed after %d callbacks, %d answers recorded\n",
				result.CallID, result.Callbacks, result.Answers)
			return nil
		},
	}

	cmd.Flags().StringP("destination", "d", "+15550100", "Caller number")
	cmd.Flags().Bool("replay", false, "Send every recording twice, as a retrying platform would")

	return cmd
}

func stepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step [callID]",
		Short: "Send a single callback and print the returned call flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sim := newSimulatorFromFlags(cmd)
			destination, _ := cmd.Flags().GetString("destination")
			legID, _ := cmd.Flags().GetString("leg")
			recordingID, _ := cmd.Flags().GetString("recording")

			var rec *recordingPayload
			if legID != "" || recordingID != "" {
				rec = &recordingPayload{LegID: legID, ID: recordingID}
			}

			f, err := sim.Step(cmd.Context(), args[0], destination, rec)
			if err != nil {
				return err
			}
			printFlow(f)
			return nil
		},
	}

	cmd.Flags().StringP("destination", "d", "", "Caller number (first contact only)")
	cmd.Flags().String("leg", "", "Leg ID of the previous recording")
	cmd.Flags().String("recording", "", "Recording ID of the previous recording")

	return cmd
}

func newSimulatorFromFlags(cmd *cobra.Command) *simulator {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return newSimulator(server, timeout)
}

func printFlow(f *flow) {
	fmt.Printf("%s\n", f.Title)
	for i, s := range f.Steps {
		switch s.Action {
		case "say":
			fmt.Printf("  %d. say    %q\n", i+1, s.Options.Payload)
		case "record":
			fmt.Printf("  %d. record onFinish=%s\n", i+1, s.Options.OnFinish)
		default:
			fmt.Printf("  %d. %s\n", i+1, s.Action)
		}
	}
}
