package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"curator/internal/services"
)

// NewActionCmd creates the command that applies a user action
func NewActionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "action <name> [payload-json]",
		Short: "Apply a user action",
		Long: `Apply one of the actions the feed learns from.

Actions and payloads:
  click            {"siteUrl": "...", "topic": "...", "articleId": "..."}
  block-site       {"siteUrl": "..."}        (toggles)
  demote-site      {"siteUrl": "..."}
  demote-topic     {"topic": "..."}
  add-site         {"url": "...", "category": "..."}
  answer-question  {"questionId": "...", "answer": "..."}

Example:
  curator action demote-topic '{"topic":"Gossip"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := "{}"
			if len(args) == 2 {
				payload = args[1]
			}
			return runAction(cmd.Context(), cmd.OutOrStdout(), args[0], payload)
		},
	}
}

// NewQuestionsCmd creates the command listing pending calibration questions
func NewQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List pending calibration questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuestions(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// NewAnswerCmd creates the command answering a calibration question
func NewAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <question-id> <option>",
		Short: "Answer a calibration question",
		Long: `Answer a pending question with one of its options. The answer refines
your interest model, which regenerates the scoring rubric on the next run.
Requires a Gemini API key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(services.AnswerPayload{QuestionID: args[0], Answer: args[1]})
			if err != nil {
				return err
			}
			return runAction(cmd.Context(), cmd.OutOrStdout(), services.ActionAnswerQuestion, string(payload))
		},
	}
}

func runAction(ctx context.Context, out io.Writer, action, payload string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.dispatcher.Dispatch(ctx, services.Request{Action: action, Payload: json.RawMessage(payload)})
	if err != nil {
		return err
	}
	if !resp.Success {
		if resp.Error != "" {
			return fmt.Errorf("%s failed: %s", action, resp.Error)
		}
		return fmt.Errorf("%s was not applied", action)
	}

	switch {
	case resp.Blocked != nil && *resp.Blocked:
		fmt.Fprintln(out, "Source blocked")
	case resp.Blocked != nil:
		fmt.Fprintln(out, "Source unblocked")
	default:
		fmt.Fprintf(out, "Applied %s\n", action)
	}
	return nil
}

func runQuestions(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	prefs, err := a.store.GetPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}
	if len(prefs.PendingQuestions) == 0 {
		fmt.Fprintln(out, "No pending questions.")
		return nil
	}
	for _, q := range prefs.PendingQuestions {
		fmt.Fprintf(out, "[%s] %s\n", q.ID, q.Question)
		for _, opt := range q.Options {
			fmt.Fprintf(out, "    - %s\n", opt)
		}
		if q.Context != "" {
			fmt.Fprintf(out, "    (%s)\n", q.Context)
		}
	}
	return nil
}
