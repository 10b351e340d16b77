// Command qbank manages the sequence identifiers of a question bank: create,
// delete-and-renumber, regenerate, verify and export collections.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, newApp(os.Stdout, huhConfirmer{}), os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "qbank:", err)
		os.Exit(1)
	}
}
