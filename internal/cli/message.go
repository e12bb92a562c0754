package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/admin"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// newMessageCommand constructs the `message` command group.
func newMessageCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Inspect and manage stored messages",
		Long: `Inspect and manage stored messages.

Queue commands take <vhost> <queue>; message commands take <vhost> <id>.

  length  Count the messages of a queue
  peek    Show the next claimable messages of a queue
  list    Page through the messages of a vhost
  get     Show one message
  delete  Remove a message regardless of its claim
  reset   Clear the retry state and claim of a message
  lock    Claim a message manually
  unlock  Release a claim
  ack     Acknowledge a message
  exec    Run the queue's callback on one message now`,
	}

	cmd.AddCommand(
		newMessageLengthCommand(rt),
		newMessagePeekCommand(rt),
		newMessageListCommand(rt),
		newMessageByIDCommand(rt, "get", "Show one message", (*admin.Service).Get),
		newMessageByIDCommand(rt, "delete", "Remove a message", (*admin.Service).Delete),
		newMessageByIDCommand(rt, "reset", "Clear the retry state and claim of a message", (*admin.Service).Reset),
		newMessageByIDCommand(rt, "lock", "Claim a message manually", (*admin.Service).Lock),
		newMessageUnlockCommand(rt),
		newMessageByIDCommand(rt, "ack", "Acknowledge a message", (*admin.Service).Ack),
		newMessageByIDCommand(rt, "exec", "Run the queue's callback on one message", (*admin.Service).Exec),
	)
	return cmd
}

func newMessageLengthCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "length <vhost> <queue>",
		Short: "Count the messages of a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return s.Length(ctx, args[0], args[1])
			})
		},
	}
}

func newMessagePeekCommand(rt *runtime) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "peek <vhost> <queue>",
		Short: "Show the next claimable messages of a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return s.Peek(ctx, args[0], args[1], n)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 1, "Number of messages")
	return cmd
}

func newMessageListCommand(rt *runtime) *cobra.Command {
	var (
		filter queue.Filter
		lock   string
		level  int
	)
	cmd := &cobra.Command{
		Use:   "list <vhost>",
		Short: "Page through the messages of a vhost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Lock = queue.LockState(lock)
			if cmd.Flags().Changed("level") {
				filter.RetryLevel = &level
			}
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return s.List(ctx, args[0], filter)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filter.Queue, "queue", "", "Only this queue")
	flags.StringVar(&filter.Group, "group", "", "Only this group")
	flags.StringVar(&filter.KeyContains, "key", "", "Only keys containing this text")
	flags.StringVar(&lock, "lock", "", "Lock state: locked|unlocked")
	flags.IntVar(&level, "level", 0, "Only messages with this retry count")
	flags.IntVar(&filter.Offset, "offset", 0, "Messages to skip")
	flags.IntVar(&filter.Limit, "limit", queue.DefaultPageLimit, "Page size")
	return cmd
}

func newMessageUnlockCommand(rt *runtime) *cobra.Command {
	var lease string
	cmd := &cobra.Command{
		Use:   "unlock <vhost> <id>",
		Short: "Release a claim",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return s.Unlock(ctx, args[0], args[1], lease)
			})
		},
	}
	cmd.Flags().StringVar(&lease, "lease", "", "Only release the claim holding this lease")
	return cmd
}

func newMessageByIDCommand(rt *runtime, use, short string, op func(*admin.Service, context.Context, string, string) admin.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <vhost> <id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.administer(cmd, func(ctx context.Context, s *admin.Service) admin.Result {
				return op(s, ctx, args[0], args[1])
			})
		},
	}
}

// administer opens every vhost storage and runs op against the admin
// service.
func (rt *runtime) administer(cmd *cobra.Command, op func(context.Context, *admin.Service) admin.Result) error {
	ctx := cmd.Context()
	a, err := rt.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.Admin(ctx, a.Control())
	if err != nil {
		return err
	}
	return printResult(cmd, op(ctx, svc))
}
