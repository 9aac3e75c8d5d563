package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// newScheduleCmd wires a periodic "crawl iter next" trigger: a small
// standing client-side scheduler, grounded on the pack's cron-driven
// recurring-job pattern, distinct from the control plane itself (which
// stays a synchronous request/response surface).
func newScheduleCmd() *cobra.Command {
	var mode, spec string
	cmd := &cobra.Command{
		Use:   "schedule <crawl_id>",
		Short: "Periodically trigger the next iteration of a crawl on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crawlID := args[0]
			switch mode {
			case "baseline", "incremental", "full":
			default:
				return &cliError{code: exitInvalidArgs, msg: "--mode must be one of baseline|incremental|full"}
			}

			c := cron.New()
			_, err := c.AddFunc(spec, func() {
				var out map[string]interface{}
				path := "/api/crawls/" + crawlID + "/iterations?mode=" + mode
				if err := client().do("POST", path, nil, &out); err != nil {
					fmt.Fprintf(os.Stderr, "scheduled iteration failed: %v\n", err)
					return
				}
				fmt.Printf("scheduled iteration started: crawl_id=%v state=%v\n", out["crawl_id"], out["state"])
			})
			if err != nil {
				return &cliError{code: exitInvalidArgs, msg: fmt.Sprintf("invalid cron spec: %v", err)}
			}

			c.Start()
			defer c.Stop()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "incremental", "iteration mode: baseline|incremental|full")
	cmd.Flags().StringVar(&spec, "cron", "0 * * * *", "standard 5-field cron expression")
	return cmd
}
