package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type ChatInput struct {
	ChatID string
}

type ChatResult struct {
	Status string
}

// ChatWorkflow drives one chat: it waits for user messages and runs the
// answer activity for each. The workflow stays open until cancelled so
// follow-up messages reuse the same history.
func ChatWorkflow(ctx workflow.Context, input ChatInput) (ChatResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	logger := workflow.GetLogger(ctx)
	messageCh := workflow.GetSignalChannel(ctx, MessageSignalName)

	for {
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(messageCh, func(c workflow.ReceiveChannel, more bool) {
			var msg string
			c.Receive(ctx, &msg)
			logger.Info("received message", "chat_id", input.ChatID)

			result := AnswerOutput{}
			if err := workflow.ExecuteActivity(ctx, "AnswerQuestion", AnswerInput{
				ChatID:   input.ChatID,
				Question: msg,
			}).Get(ctx, &result); err != nil {
				logger.Error("answer activity failed", "error", err)
				failureInput := ChatFailureInput{
					ChatID: input.ChatID,
					Error:  err.Error(),
				}
				if failureErr := workflow.ExecuteActivity(ctx, "HandleChatFailure", failureInput).Get(ctx, nil); failureErr != nil {
					logger.Error("failed to persist chat failure event", "error", failureErr)
				}
			}
		})
		selector.Select(ctx)

		if ctx.Err() != nil {
			return ChatResult{Status: "cancelled"}, nil
		}
	}
}
