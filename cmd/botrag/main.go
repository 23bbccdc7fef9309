// Command botrag is the entry point for the multi-tenant retrieval service.
// It provides a CLI (via Cobra) for ingestion and ad-hoc queries, and the
// HTTP server that exposes the vector store and retrieval endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/botrag-go/cmd/botrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
