package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"backend/internal/config"
)

// EmailSender 邮件发送器。模板在发送时渲染（即队列消费端），
// 入队方只提供模板名与上下文数据。
type EmailSender struct {
	cfg       *config.SMTPConfig
	templates *template.Template
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(cfg *config.SMTPConfig) *EmailSender {
	if cfg == nil {
		return nil
	}

	var templates *template.Template
	if cfg.TemplatePath != "" {
		templates, _ = template.ParseGlob(cfg.TemplatePath)
	}

	return &EmailSender{
		cfg:       cfg,
		templates: templates,
	}
}

// Send 渲染模板并通过 SMTP 发送邮件
func (e *EmailSender) Send(to, subject, templateName string, data map[string]any) error {
	if e == nil || e.cfg == nil {
		return fmt.Errorf("邮件未配置")
	}

	var body bytes.Buffer
	if e.templates != nil {
		if tmpl := e.templates.Lookup(templateName + ".html"); tmpl != nil {
			if err := tmpl.Execute(&body, data); err != nil {
				return fmt.Errorf("渲染邮件模板 %s 失败: %w", templateName, err)
			}
		}
	}
	if body.Len() == 0 {
		// 模板缺失时退化为纯文本主题正文，避免整个任务反复重试
		body.WriteString(subject)
	}

	message := fmt.Sprintf(
		"From: %s <%s>\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		e.cfg.FromName,
		e.cfg.From,
		to,
		subject,
		body.String(),
	)

	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	if err := smtp.SendMail(addr, auth, e.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	return nil
}
