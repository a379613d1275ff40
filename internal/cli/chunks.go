package cli

import (
	"book-indexer/internal/bootstrap"
	"book-indexer/internal/services/indexer"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chunks [book-id]",
		Short: "Print the chunks a vector run would write",
		Args:  cobra.ExactArgs(1),
		Run:   runChunks,
	}
	cmd.Flags().IntP("limit", "l", 0, "Print at most this many chunks (0 = all)")

	RootCmd.AddCommand(cmd)
}

func runChunks(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	deps, err := open(cmd.Context(), bootstrap.Need{Objects: true})
	if err != nil {
		exitErr("open", err)
	}
	defer deps.Close()

	preview, err := deps.Service.BuildChunks(cmd.Context(), indexer.Params{BookID: args[0], VersionID: versionID})
	if err != nil {
		exitErr("build chunks", err)
	}
	if limit > 0 && len(preview.Chunks) > limit {
		preview.Chunks = preview.Chunks[:limit]
	}
	printJSON(preview)
}
