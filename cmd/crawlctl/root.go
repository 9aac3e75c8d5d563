// Command crawlctl is the illustrative control-plane CLI: a thin
// client over internal/server's control-plane HTTP surface, structured the
// way the pack's docs-crawler CLI structures its cobra command tree
// (rohmanhakim-docs-crawler/internal/cli/root.go).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "crawlctl",
	Short: "Control plane client for the crawl execution core",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8088", "control-plane server address")
	rootCmd.AddCommand(newCrawlCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ce *cliError
		if ok := asCliError(err, &ce); ok {
			fmt.Fprintln(os.Stderr, "error:", ce.msg)
			os.Exit(int(ce.code))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(int(exitInvalidArgs))
	}
}

func asCliError(err error, target **cliError) bool {
	if ce, ok := err.(*cliError); ok {
		*target = ce
		return true
	}
	return false
}

func client() *apiClient { return newAPIClient(addr) }
