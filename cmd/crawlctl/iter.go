package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newIterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iter",
		Short: "Manage iterations",
	}
	cmd.AddCommand(newIterNextCmd())
	return cmd
}

func newIterNextCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "next <crawl_id>",
		Short: "Create and start the next iteration of a crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "baseline", "incremental", "full":
			default:
				return &cliError{code: exitInvalidArgs, msg: "--mode must be one of baseline|incremental|full"}
			}

			var out map[string]interface{}
			path := "/api/crawls/" + args[0] + "/iterations?mode=" + mode
			if err := client().do("POST", path, nil, &out); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "incremental", "iteration mode: baseline|incremental|full")
	return cmd
}
