// Command ragpref drives the retrieval-augmented preference data pipeline:
// ask_multi against a configured retriever/generator backend, publishing
// onto an event bus that a verifier and aggregator consume asynchronously,
// landing SFT and DPO records in JSONL sinks.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	// Backends self-register into their respective registries via init().
	_ "github.com/praetorian-inc/ragpref/internal/llm/bedrock"
	_ "github.com/praetorian-inc/ragpref/internal/llm/openai"
	_ "github.com/praetorian-inc/ragpref/internal/llm/replicate"
	_ "github.com/praetorian-inc/ragpref/internal/llm/testgen"
)

const version = "0.1.0"

func main() {
	// Parse with a custom exit handler to enforce proper exit codes:
	// 0 = success, 1 = pipeline/runtime error, 2 = validation/usage error
	ctx := kong.Parse(&CLI,
		kong.Name("ragpref"),
		kong.Description("Retrieval-augmented preference data pipeline"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(2)
			}
			os.Exit(0)
		}),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
