package cli

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema of every postgres vhost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := rt.open(ctx, cmd)
			if err != nil {
				return err
			}
			n, err := a.Migrate(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, admin.Result{
				Code:    http.StatusOK,
				Message: "ok",
				Data:    map[string]int{"migrated": n},
			})
		},
	}
}
