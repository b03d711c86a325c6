// Package main is the entry point for workoutctl, the operator CLI for the
// workout service's storage and event outbox.
package main

import (
	"fmt"
	"os"

	"example.com/workouts/cmd/workoutctl/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
