package queue_test

import (
	"context"
	"fmt"
	"time"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/logger"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
	"github.com/JaydenOK/jayden-framework-sub000/pkg/status"
)

// Example_roundTrip demonstrates enqueueing a message and consuming it with a worker
func Example_roundTrip() {
	ctx := context.Background()

	engine := queue.NewEngine(queue.WithEngineLogger(logger.Discard()))
	if err := engine.Register(queue.DefaultVHost, queue.NewMemoryStorage()); err != nil {
		panic(err)
	}

	type Order struct {
		ID int `json:"id"`
	}

	if _, err := engine.Enqueue(ctx, queue.DefaultVHost, queue.Target{Queue: "orders"}, Order{ID: 42}); err != nil {
		panic(err)
	}

	done := make(chan struct{})
	cb := queue.NewCallback(func(ctx context.Context, order Order, msg *queue.Message) error {
		fmt.Printf("processing order %d, attempt %d\n", order.ID, msg.Attempt())
		close(done)
		return nil
	})

	records := status.NewMemoryStore()
	worker, err := queue.NewWorker(engine, "orders", cb,
		queue.WithStatusStore(records),
		queue.WithPollInterval(10*time.Millisecond),
		queue.WithWorkerLogger(logger.Discard()))
	if err != nil {
		panic(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = worker.Run(runCtx) }()

	<-done
	// Ask the worker to stop once idle.
	for {
		if _, err := records.Update(ctx, worker.Key(), func(r *status.Record) { r.Stopping = true }); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	<-worker.Done()
	cancel()

	n, _ := engine.Length(ctx, queue.DefaultVHost, queue.DefaultGroup, "orders")
	fmt.Println("remaining:", n)

	// Output:
	// processing order 42, attempt 1
	// remaining: 0
}

// ExampleRetryAfter shows a callback asking for a custom retry delay
func ExampleRetryAfter() {
	ctx := context.Background()

	engine := queue.NewEngine(queue.WithEngineLogger(logger.Discard()))
	storage := queue.NewMemoryStorage()
	_ = engine.Register(queue.DefaultVHost, storage)

	_, _ = engine.Enqueue(ctx, "", queue.Target{Queue: "webhooks", Key: "hook-1"}, map[string]string{"url": "https://example.com"})

	cb := queue.CallbackFunc("webhook", func(context.Context, *queue.Message) error {
		return queue.RetryAfter(2 * time.Minute)
	})

	msg, _ := engine.Claim(ctx, "", "", "webhooks")
	err := queue.Execute(ctx, cb, msg)
	delay, _ := queue.RetryDelay(err)
	_, _ = engine.Nack(ctx, msg, delay)

	stored, _ := storage.Get(ctx, msg.ID)
	fmt.Println("attempts failed:", stored.SyncCount)
	fmt.Println("retry in:", delay)

	// Output:
	// attempts failed: 1
	// retry in: 2m0s
}

// ExampleParseTarget shows the compact "queue:key:delay" target notation
func ExampleParseTarget() {
	t, err := queue.ParseTarget("reminders:user-42:300")
	if err != nil {
		panic(err)
	}
	fmt.Println(t.Queue, t.Key, t.Delay)

	// Output:
	// reminders user-42 5m0s
}
