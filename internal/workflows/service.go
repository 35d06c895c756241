package workflows

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/client"
)

const (
	MessageSignalName = "message"
)

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "fennec-chats"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

func (s *Service) StartChat(ctx context.Context, chatID string) error {
	options := client.StartWorkflowOptions{
		ID:        workflowID(chatID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, ChatWorkflow, ChatInput{ChatID: chatID})
	return err
}

func (s *Service) SignalMessage(ctx context.Context, chatID string, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("message required")
	}
	options := client.StartWorkflowOptions{
		ID:        workflowID(chatID),
		TaskQueue: s.taskQueue,
	}
	// SignalWithStart keeps the chat usable after the workflow has completed
	// or the worker restarted.
	_, err := s.client.SignalWithStartWorkflow(
		ctx,
		workflowID(chatID),
		MessageSignalName,
		message,
		options,
		ChatWorkflow,
		ChatInput{ChatID: chatID},
	)
	return err
}

func (s *Service) CancelChat(ctx context.Context, chatID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(chatID), "")
}

func workflowID(chatID string) string {
	return fmt.Sprintf("chat:%s", chatID)
}
