/*
Package espalier is a workflow orchestration engine: it coordinates named
agents through declared steps with error classification, retries, sandboxed
conditions and observability.

A workflow is a flat list of steps executed in declaration order. Each step
names the agents it invokes and how: sequentially (chaining outputs to
inputs), in parallel (goroutine fan-out with deterministic result order),
gated by a condition expression, repeated in a bounded loop, or held in
reserve as an error handler for other steps.

# Concept

Espalier separates the workflow definition (Config) from the execution
state (Context) and the side-effects (Agents, Tools). The engine owns
ordering, timeouts, retries and event emission; your application owns the
agents. This keeps the core embeddable behind any surface: a library call,
a CLI, an HTTP endpoint or an MCP server.

# Key Features

  - Deterministic coordination: step order, parallel result slots and tool
    chains are stable across runs.
  - Classified error recovery: failures are categorized by keyword rules
    and retried with exponential backoff under per-category strategies.
  - Sandboxed conditions: a closed expression grammar over run state, with
    no access to anything else.
  - Hexagonal architecture: storage, transport and observability live in
    adapters behind small ports.

# Usage

Assemble a workflow with the builder, then execute it:

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/espalier"
		"github.com/aretw0/espalier/pkg/ports"
	)

	func main() {
		analyze := ports.AgentFunc(func(ctx context.Context, input any, meta map[string]any) (any, error) {
			return fmt.Sprintf("analyzed: %v", input), nil
		})

		engine, err := espalier.NewWorkflow("review").
			AddAgent("analyzer", analyze).
			Sequential("analyze", []string{"analyzer"}).
			Build()
		if err != nil {
			log.Fatal(err)
		}

		result, err := engine.Execute(context.Background(), "the draft")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.ExecutionSummary().FinalResult)
	}
*/
package espalier
