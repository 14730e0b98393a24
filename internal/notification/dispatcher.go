package notification

import (
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/worker/tasks"

	"go.uber.org/zap"
)

// Dispatcher 副作用分发器：实时通知走 WebSocket Hub，邮件走异步队列。
// 投递失败只记录日志，绝不影响调用方的业务流程。
type Dispatcher struct {
	hub    *WebSocketHub
	queue  queue.Client
	logger *zap.Logger
}

// NewDispatcher 创建分发器。queue 可为 nil（未配置邮件队列时降级为仅实时通知）
func NewDispatcher(hub *WebSocketHub, q queue.Client) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		queue:  q,
		logger: logger.Named("dispatcher"),
	}
}

// Notify 按目标投递实时通知。target 指定用户或角色频道二者之一
func (d *Dispatcher) Notify(target Target, typ, message string, data map[string]any) {
	if d.hub == nil {
		return
	}
	n := New(typ, message, data)
	var err error
	switch {
	case target.UserID != "":
		err = d.hub.SendToUser(target.UserID, n)
	case target.Role != "":
		err = d.hub.SendToRole(target.Role, n)
	default:
		d.logger.Warn("通知目标为空，丢弃", zap.String("type", typ))
		return
	}
	if err != nil {
		d.logger.Warn("实时通知投递失败",
			zap.String("type", typ),
			zap.String("userId", target.UserID),
			zap.String("role", target.Role),
			zap.Error(err))
	}
}

// EnqueueEmail 将邮件任务投递到异步队列，由 worker 重试发送
func (d *Dispatcher) EnqueueEmail(to, subject, templateName string, tmplCtx map[string]any) {
	if d.queue == nil {
		return
	}
	payload := tasks.SendEmailPayload{
		To:       to,
		Subject:  subject,
		Template: templateName,
		Context:  tmplCtx,
	}
	if err := d.queue.EnqueueSendEmail(payload); err != nil {
		metrics.EmailEnqueueFailuresTotal.Inc()
		d.logger.Error("邮件任务入队失败",
			zap.String("to", to),
			zap.String("template", templateName),
			zap.Error(err))
	}
}
