package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var testsFile string

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Work with test cases",
}

var testsSuggestCmd = &cobra.Command{
	Use:   "suggest [file]",
	Short: "Suggest extra test cases and run them in the sandbox",
	Long: `Ask the reasoning service for more test cases for the code, then run the
code, the existing tests and the suggestions together in the sandbox.

Reads the code from stdin when no file is given or the file is "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) > 0 {
			path = args[0]
		}
		return testsSuggestRun(path)
	},
}

func init() {
	testsSuggestCmd.Flags().StringVar(&testsFile, "tests", "", "File with existing tests")

	testsCmd.AddCommand(testsSuggestCmd)
	rootCmd.AddCommand(testsCmd)
}

func testsSuggestRun(path string) error {
	code, err := readSource(path)
	if err != nil {
		return err
	}
	var tests string
	if testsFile != "" {
		if tests, err = readSource(testsFile); err != nil {
			return err
		}
	}

	ctx := context.Background()
	svc, err := newService()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx, svc)
	if err != nil {
		return err
	}

	got, err := svc.SuggestTests(ctx, sess, code, tests)
	if err != nil {
		return fmt.Errorf("suggest tests: %w", err)
	}

	ui.Success("Suggested tests: %s", verdictLine(got.Verdict.Status, got.Verdict.Message))
	ui.Section("Tests", got.Tests)
	return nil
}
