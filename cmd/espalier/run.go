package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the workflow once",
	Long: `Executes the workflow from the definition file with the given input.
Agents are stubbed with echo agents; embed the library to run real ones.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWorkflow(cmd); err != nil {
			fmt.Printf("Run failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().String("input", "", "Input data for the workflow")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command) error {
	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")

	result, err := engine.Execute(cmd.Context(), input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"run_id":        result.RunID,
		"summary":       result.ExecutionSummary(),
		"agent_outputs": result.AgentOutputs,
		"errors":        result.Errors,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
