package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// EmailSender 邮件发送抽象，便于注入 mock
type EmailSender interface {
	Send(to, subject, templateName string, data map[string]any) error
}

// EmailHandler 邮件任务处理器
type EmailHandler struct {
	sender EmailSender
	logger *zap.Logger
}

// NewEmailHandler 创建邮件任务处理器
func NewEmailHandler(sender EmailSender, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		sender: sender,
		logger: logger,
	}
}

// HandleSendEmail 消费 email:send 任务
func (h *EmailHandler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var p tasks.SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始发送邮件",
		zap.String("to", p.To),
		zap.String("template", p.Template),
	)

	if err := h.sender.Send(p.To, p.Subject, p.Template, p.Context); err != nil {
		h.logger.Error("邮件发送失败",
			zap.String("to", p.To),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("邮件发送完成", zap.String("to", p.To))
	return nil
}
