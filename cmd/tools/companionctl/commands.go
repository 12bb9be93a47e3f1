package main

import "github.com/spf13/cobra"

var (
	useEmotionService bool
	evalVerbose       bool

	rootCmd = &cobra.Command{
		Use:          "companionctl",
		Short:        "Maintenance and evaluation tools for the Enoki backend",
		SilenceUsage: true,
	}

	encryptTurnsCmd = &cobra.Command{
		Use:   "encrypt-turns",
		Short: "Encrypt every stored turn that is still plaintext (requires ENCRYPTION_KEY)",
		Args:  cobra.NoArgs,
		RunE:  runEncryptTurns, // cmd_store.go
	}

	sarcasmEvalCmd = &cobra.Command{
		Use:   "sarcasm-eval",
		Short: "Score the labelled sarcasm set and print accuracy and a confusion matrix",
		Args:  cobra.NoArgs,
		RunE:  runSarcasmEval, // cmd_eval.go
	}

	classifyCmd = &cobra.Command{
		Use:   "classify [text]",
		Short: "Run the situation classifier and the sarcasm scorer on one message",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassify, // cmd_eval.go
	}
)

func init() {
	sarcasmEvalCmd.Flags().BoolVar(&useEmotionService, "remote", false, "use the configured emotion service instead of keyword heuristics")
	sarcasmEvalCmd.Flags().BoolVarP(&evalVerbose, "verbose", "v", false, "print one line per sentence")
	classifyCmd.Flags().BoolVar(&useEmotionService, "remote", false, "use the configured emotion service instead of keyword heuristics")

	rootCmd.AddCommand(encryptTurnsCmd, sarcasmEvalCmd, classifyCmd)
}
