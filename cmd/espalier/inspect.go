package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the workflow's configuration and validation state",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := loadEngine(cmd)
		if err != nil {
			fmt.Printf("Inspect failed: %v\n", err)
			os.Exit(1)
		}

		out, err := json.MarshalIndent(engine.Info(), "", "  ")
		if err != nil {
			fmt.Printf("Inspect failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
