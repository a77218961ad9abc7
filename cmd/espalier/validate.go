package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the workflow definition for consistency",
	Long:  `Statically validates the workflow: step types, agent references, conditions, error handlers.`,
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := loadEngine(cmd)
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}

		report := engine.Validate()
		if !report.Valid {
			for _, issue := range report.Issues {
				fmt.Printf("  - %s\n", issue)
			}
			os.Exit(1)
		}
		fmt.Printf("Workflow is valid! (%d steps, %d agents)\n", report.StepsCount, report.AgentsCount)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
