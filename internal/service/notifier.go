package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 邮件模板类型（模板渲染由邮件服务完成）
const (
	TemplateWelcomePhotographer = "welcome_photographer"
	TemplateEmailVerification   = "email_verification"
)

// Email 模板邮件请求
type Email struct {
	To        string
	Template  string
	AccountID string
	Data      map[string]any
}

// Notifier 发送模板邮件
type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// mailRequest 邮件 API 请求体
type mailRequest struct {
	From           string         `json:"from,omitempty"`
	To             string         `json:"to"`
	TemplateType   string         `json:"templateType"`
	PhotographerID string         `json:"photographerId,omitempty"`
	Data           map[string]any `json:"data"`
}

type mailResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// MailAPINotifier 调用外部模板邮件 API
type MailAPINotifier struct {
	httpClient *resty.Client
	from       string
	logger     *zap.Logger
}

func NewMailAPINotifier(baseURL, apiKey, from string, timeout time.Duration, logger *zap.Logger) *MailAPINotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &MailAPINotifier{
		httpClient: client,
		from:       from,
		logger:     logger,
	}
}

func (n *MailAPINotifier) Send(ctx context.Context, email Email) error {
	var result mailResponse
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(mailRequest{
			From:           n.from,
			To:             email.To,
			TemplateType:   email.Template,
			PhotographerID: email.AccountID,
			Data:           email.Data,
		}).
		SetResult(&result).
		Post("/emails/templated")
	if err != nil {
		return fmt.Errorf("failed to call mail API: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail API error: status %d: %s", resp.StatusCode(), resp.String())
	}

	n.logger.Debug("Templated email accepted",
		zap.String("template", email.Template),
		zap.String("message_id", result.ID),
	)
	return nil
}

// LogNotifier dev 环境下仅记录邮件
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, email Email) error {
	n.logger.Info("Mail API not configured, email not sent",
		zap.String("to", email.To),
		zap.String("template", email.Template),
		zap.String("account_id", email.AccountID),
	)
	return nil
}
