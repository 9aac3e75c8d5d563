package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
	}
	cmd.AddCommand(newCheckpointListCmd(), newCheckpointCreateCmd(), newCheckpointRestoreCmd())
	return cmd
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <crawl_id>",
		Short: "List checkpoints for a crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := client().do("GET", "/api/crawls/"+args[0]+"/checkpoints", nil, &out); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func newCheckpointCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <crawl_id>",
		Short: "Write a manual checkpoint for a crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := client().do("POST", "/api/crawls/"+args[0]+"/checkpoints", nil, &out); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}

func newCheckpointRestoreCmd() *cobra.Command {
	var checkpointID string
	cmd := &cobra.Command{
		Use:   "restore <crawl_id>",
		Short: "Restore a crawl from a checkpoint (latest, if --checkpoint-id is omitted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/crawls/" + args[0] + "/restore"
			if checkpointID != "" {
				path += "?checkpoint_id=" + checkpointID
			}
			var out map[string]interface{}
			if err := client().do("POST", path, nil, &out); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpointID, "checkpoint-id", "", "specific checkpoint to restore (defaults to latest)")
	return cmd
}
