package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/output"
	"github.com/joescharf/crev/internal/review"
)

var reviewStatus string

// codeReader supplies submitted code when no file is given, replaceable in tests.
var codeReader io.Reader = os.Stdin

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Submit, inspect and vote on code reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit code for an AI review",
	Long: `Send code to the reasoning service, run the original and the suggested
code in the sandbox, and store the result as a pending review.

Reads stdin when no file is given or the file is "-".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) > 0 {
			path = args[0]
		}
		return reviewSubmitRun(cmd.Context(), path)
	},
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show a review with its votes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

var reviewVoteCmd = &cobra.Command{
	Use:       "vote <review-id> approve|disapprove",
	Short:     "Vote on a pending review",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(models.VoteApprove), string(models.VoteDisapprove)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewVoteRun(args[0], args[1])
	},
}

var reviewFinalizeCmd = &cobra.Command{
	Use:   "finalize <review-id>",
	Short: "Give lead sign-off on an approved review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewFinalizeRun(args[0])
	},
}

var reviewRecomputeCmd = &cobra.Command{
	Use:   "recompute <review-id>",
	Short: "Re-derive a pending review's status from its votes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRecomputeRun(args[0])
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "Filter by status: pending, approved, rejected, finally_approved")

	reviewCmd.AddCommand(reviewSubmitCmd)
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewVoteCmd)
	reviewCmd.AddCommand(reviewFinalizeCmd)
	reviewCmd.AddCommand(reviewRecomputeCmd)
	rootCmd.AddCommand(reviewCmd)
}

// readSource reads a file, or codeReader for "" and "-".
func readSource(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(codeReader)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func reviewSubmitRun(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	code, err := readSource(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("no code to review")
	}

	if dryRun {
		ui.DryRunMsg("Would submit %d bytes of code for review", len(code))
		return nil
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx, svc)
	if err != nil {
		return err
	}

	ui.VerboseLog("Requesting review...")
	rev, err := svc.SubmitForReview(ctx, sess, code)
	if err != nil {
		return fmt.Errorf("submit review: %w", err)
	}

	if rev.ExtractionFailed {
		ui.Warning("Review %s stored, but the reasoning response could not be understood", output.Cyan(output.ShortID(rev.ID)))
	} else {
		ui.Success("Review %s submitted", output.Cyan(output.ShortID(rev.ID)))
	}
	printReview(&review.Detail{Review: rev})
	return nil
}

func reviewListRun() error {
	svc, err := newService()
	if err != nil {
		return err
	}

	reviews, err := svc.ListReviews(context.Background(), models.ReviewStatus(reviewStatus))
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		ui.Info("No reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Author", "Status", "Original", "Suggested", "Code", "Created"})
	for _, r := range reviews {
		_ = table.Append([]string{
			output.ShortID(r.ID),
			r.AuthorName,
			output.StatusColor(string(r.Status)),
			output.VerdictColor(string(r.OriginalVerdict)),
			output.VerdictColor(string(r.SuggestedVerdict)),
			output.Truncate(r.OriginalCode, 40),
			r.CreatedAt.Format(time.DateTime),
		})
	}
	_ = table.Render()
	return nil
}

func reviewShowRun(id string) error {
	svc, err := newService()
	if err != nil {
		return err
	}

	d, err := svc.GetReview(context.Background(), id)
	if err != nil {
		return err
	}
	printReview(d)
	return nil
}

func printReview(d *review.Detail) {
	r := d.Review
	fmt.Fprintf(ui.Out, "%s  by %s\n", output.Cyan(output.ShortID(r.ID)), r.AuthorName)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(r.Status)))
	fmt.Fprintf(ui.Out, "  Votes:      %d approve, %d disapprove\n", d.Approve, d.Disapprove)
	fmt.Fprintf(ui.Out, "  Original:   %s\n", verdictLine(r.OriginalVerdict, r.OriginalVerdictMessage))
	fmt.Fprintf(ui.Out, "  Suggested:  %s\n", verdictLine(r.SuggestedVerdict, r.SuggestedVerdictMessage))
	fmt.Fprintf(ui.Out, "  Complexity: %s -> %s\n", r.TimeComplexityOriginal, r.TimeComplexityRefactored)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", r.ID)

	ui.Section("Original code", r.OriginalCode)
	ui.Section("Suggested code", r.SuggestedCode)
	ui.Section("Vulnerabilities", r.Vulnerabilities)
	ui.Section("Changes", r.Changes)

	if len(d.Votes) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Voter", "Choice", "At"})
		for _, v := range d.Votes {
			_ = table.Append([]string{output.ShortID(v.VoterID), output.VoteColor(string(v.Choice)), v.CreatedAt.Format(time.DateTime)})
		}
		_ = table.Render()
	}
}

func verdictLine(status models.VerdictStatus, msg string) string {
	if msg == "" {
		return output.VerdictColor(string(status))
	}
	return fmt.Sprintf("%s (%s)", output.VerdictColor(string(status)), msg)
}

func reviewVoteRun(id, choice string) error {
	c := models.VoteChoice(strings.ToLower(choice))
	if !c.Valid() {
		return fmt.Errorf("invalid vote %q (use approve or disapprove)", choice)
	}

	if dryRun {
		ui.DryRunMsg("Would vote %s on review %s", c, id)
		return nil
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

	rev, err := svc.Vote(ctx, sess, id, c)
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}
	ui.Success("Voted %s on %s, status %s", c, output.Cyan(output.ShortID(rev.ID)), output.StatusColor(string(rev.Status)))
	return nil
}

func reviewFinalizeRun(id string) error {
	if dryRun {
		ui.DryRunMsg("Would finalize review %s", id)
		return nil
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

	rev, err := svc.Finalize(ctx, sess, id)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	ui.Success("Review %s is %s", output.Cyan(output.ShortID(rev.ID)), output.StatusColor(string(rev.Status)))
	return nil
}

func reviewRecomputeRun(id string) error {
	if dryRun {
		ui.DryRunMsg("Would recompute review %s", id)
		return nil
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	rev, err := svc.Recompute(context.Background(), id)
	if err != nil {
		return fmt.Errorf("recompute: %w", err)
	}
	ui.Success("Review %s is %s", output.Cyan(output.ShortID(rev.ID)), output.StatusColor(string(rev.Status)))
	return nil
}
