package cli

import (
	"fmt"

	"book-indexer/internal/bootstrap"
	"book-indexer/internal/services/indexer"

	"github.com/spf13/cobra"
)

type runOutput struct {
	BookID string         `json:"bookId"`
	Result indexer.Result `json:"result"`
	Error  string         `json:"error,omitempty"`
}

func init() {
	for _, kind := range []indexer.Kind{indexer.KindVector, indexer.KindKeyword} {
		cmd := &cobra.Command{
			Use:   string(kind) + " [book-id...]",
			Short: fmt.Sprintf("Build the %s index for books", kind),
			Args:  cobra.MinimumNArgs(1),
			RunE:  runIndex(kind),
		}
		cmd.Flags().BoolVar(&force, "force", false, "Re-index versions already marked as indexed")
		RootCmd.AddCommand(cmd)
	}
}

// runIndex indexes the books one after another and fails if any run failed.
func runIndex(kind indexer.Kind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		need := bootstrap.Need{Objects: true}
		if kind == indexer.KindVector {
			need.Vectors = true
		} else {
			need.Keywords = true
		}
		deps, err := open(cmd.Context(), need)
		if err != nil {
			return err
		}
		defer deps.Close()

		failures := 0
		for _, id := range args {
			res := deps.Service.Run(cmd.Context(), indexer.Job{
				Kind:   kind,
				Params: indexer.Params{BookID: id, VersionID: versionID, Force: force},
			})
			if !res.OK() {
				failures++
			}
			printJSON(runOutput{BookID: id, Result: res, Error: res.ErrorMessage()})
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d books failed", failures, len(args))
		}
		return nil
	}
}
