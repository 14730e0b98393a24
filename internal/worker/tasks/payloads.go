package tasks

// Task Types
const (
	TypeSendEmail = "email:send"
)

// SendEmailPayload 邮件发送任务载荷
// 模板在消费端渲染，入队时只携带模板名和上下文数据
type SendEmailPayload struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Context  map[string]any `json:"context"`
}
