package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
)

func newEnqueueCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <vhost> <queue[:key[:delay]]> <json>",
		Short: "Store a JSON payload in a queue",
		Long: `Store a JSON payload in a queue.

The target is "queue", "queue:key" or "queue:key:delay". A message with the
same key replaces the stored one. The delay is whole seconds or a duration
such as 90s or 5m. Without a key a random one is generated.`,
		Example: `  queued enqueue default emails:welcome-42:30s '{"user":42}'`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return s.Enqueue(ctx, args[0], args[1], json.RawMessage(args[2]))
			})
		},
	}
}
