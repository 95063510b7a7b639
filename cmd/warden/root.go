package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "warden is a CLI for running automated code-review skills against a pull request",
	Long: `warden fetches a pull request, resolves the repository's configured review
skills (local and remote), runs each through an LLM, and posts the findings
back to the pull request as review comments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() { //nolint:gochecknoinits // Cobra command registration
	rootCmd.AddCommand(reviewCmd)
}
