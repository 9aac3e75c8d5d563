package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/crawlcore/internal/models"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Manage crawls",
	}
	cmd.AddCommand(newStartCmd(), newPauseCmd(), newResumeCmd(), newCancelCmd(), newStatusCmd(), newIterCmd(), newCheckpointCmd(), newScheduleCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Submit a new crawl from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return &cliError{code: exitInvalidArgs, msg: "--config is required"}
			}
			data, err := os.ReadFile(configPath)
			if err != nil {
				return &cliError{code: exitInvalidArgs, msg: fmt.Sprintf("read config: %v", err)}
			}
			var config models.CrawlConfig
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&config); err != nil {
				return &cliError{code: exitInvalidArgs, msg: fmt.Sprintf("parse config: %v", err)}
			}

			var out map[string]interface{}
			if err := client().do("POST", "/api/crawls", config, &out); err != nil {
				return err
			}
			fmt.Printf("crawl_id=%v state=%v\n", out["crawl_id"], out["state"])
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a CrawlConfig JSON file")
	return cmd
}

func newPauseCmd() *cobra.Command  { return lifecycleCmd("pause", "Pause a running crawl") }
func newResumeCmd() *cobra.Command { return lifecycleCmd("resume", "Resume a paused crawl") }
func newCancelCmd() *cobra.Command { return lifecycleCmd("cancel", "Cancel a crawl") }

func lifecycleCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <crawl_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do("POST", "/api/crawls/"+args[0]+"/"+action, nil, nil); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", action)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <crawl_id>",
		Short: "Show a crawl's current state and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := client().do("GET", "/api/crawls/"+args[0], nil, &out); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
}
