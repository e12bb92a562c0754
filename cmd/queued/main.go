// Command queued runs and administers the message queue.
package main

import (
	"os"

	"github.com/JaydenOK/jayden-framework-sub000/internal/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
