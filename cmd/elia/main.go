// Command elia runs the Elia voice assistant server and its client tools.
//
//	elia serve --config config.yaml
//	elia ask question.wav --out answer.wav
//	elia report
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "elia: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "elia",
		Short:         "Voice Q&A assistant for students",
		Long:          "Elia answers spoken questions: speech recognition, sentiment and memory enrichment, an LLM answer and synthesized speech.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newAskCmd(),
		newTranscribeCmd(),
		newAttentionCmd(),
		newReportCmd(),
	)
	return root
}
