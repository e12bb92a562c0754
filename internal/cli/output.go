package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
)

// printResult writes res as indented JSON to stdout and turns a rejected
// result into ErrRejected.
func printResult(cmd *cobra.Command, res admin.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrRejected, res.Message)
	}
	return nil
}
