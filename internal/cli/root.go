// Package cli implements the book-indexer command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"book-indexer/internal/bootstrap"

	"github.com/spf13/cobra"
)

var (
	configPath string
	versionID  string
	force      bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "book-indexer",
	Short: "Chunk books and write them to the search indexes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.Init(configPath)
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "Config file")
	RootCmd.PersistentFlags().StringVar(&versionID, "version", "", "Version value (default: the book's default version)")
}

func open(ctx context.Context, need bootstrap.Need) (*bootstrap.Deps, error) {
	return bootstrap.Open(ctx, need)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
