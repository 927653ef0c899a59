package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"studio-billing/internal/domain"
	"studio-billing/internal/metrics"
	"studio-billing/internal/payment"
	"studio-billing/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrFulfillmentIntegrity 订单已 completed 但无法创建账号（需人工处理，不自动重试）
var ErrFulfillmentIntegrity = errors.New("completed order cannot be fulfilled")

// FulfillmentDeps 履约依赖
type FulfillmentDeps struct {
	Orders      repository.OrdersRepository
	Packages    repository.PackagesRepository
	Accounts    repository.AccountsRepository
	Subscribers repository.SubscribersRepository
	Notifier    Notifier
	Alerter     Alerter
	Metrics     *metrics.CallbackMetrics

	BaseURL     string
	MailTimeout time.Duration
}

// FulfillmentService 把刚 completed 的订单变成可用的租户账号
type FulfillmentService struct {
	orders      repository.OrdersRepository
	packages    repository.PackagesRepository
	accounts    repository.AccountsRepository
	subscribers repository.SubscribersRepository
	notifier    Notifier
	alerter     Alerter
	metrics     *metrics.CallbackMetrics

	baseURL     string
	mailTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	inflight sync.WaitGroup
}

func NewFulfillmentService(deps FulfillmentDeps, logger *zap.Logger) *FulfillmentService {
	if deps.Alerter == nil {
		deps.Alerter = NopAlerter{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewLogNotifier(logger)
	}
	if deps.MailTimeout <= 0 {
		deps.MailTimeout = 30 * time.Second
	}
	return &FulfillmentService{
		orders:      deps.Orders,
		packages:    deps.Packages,
		accounts:    deps.Accounts,
		subscribers: deps.Subscribers,
		notifier:    deps.Notifier,
		alerter:     deps.Alerter,
		metrics:     deps.Metrics,
		baseURL:     strings.TrimRight(deps.BaseURL, "/"),
		mailTimeout: deps.MailTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Fulfill 对一个刚完成 pending->completed 的订单执行履约，返回新账号 ID。
// 账号创建之后的步骤失败只记录日志，不回滚。
func (s *FulfillmentService) Fulfill(ctx context.Context, order *domain.Order, provider payment.Provider) (string, error) {
	providerName := string(provider.Name())
	alert := Alert{
		Kind:     AlertIntegrity,
		TenantID: order.TenantID,
		Provider: providerName,
		OrderNo:  order.OrderNo,
	}

	if err := order.DraftUserData.Validate(); err != nil {
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.ErrorLevel,
			"Completed order has no usable draft user data", alert)
		s.metrics.RecordFulfillment(ctx, providerName, "missing_draft")
		return "", fmt.Errorf("%w: order %s: %v", ErrFulfillmentIntegrity, order.OrderNo, err)
	}

	pkg, err := s.packages.GetPackage(ctx, order.PackageID)
	if err != nil {
		alert.Detail = map[string]string{"package_id": order.PackageID, "error": err.Error()}
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.ErrorLevel,
			"Completed order references an unresolvable package", alert)
		s.metrics.RecordFulfillment(ctx, providerName, "missing_package")
		return "", fmt.Errorf("%w: order %s: package %q: %v", ErrFulfillmentIntegrity, order.OrderNo, order.PackageID, err)
	}

	account, err := s.buildAccount(order, pkg, provider.TrustsIdentity())
	if err != nil {
		return "", err
	}

	accountID, err := s.accounts.CreateAccount(ctx, account)
	if err != nil {
		alert.Detail = map[string]string{"email": account.Email, "error": err.Error()}
		msg := "Failed to create tenant account for completed order"
		result := "account_error"
		if errors.Is(err, repository.ErrDuplicateAccount) {
			msg = "Duplicate tenant account for completed order"
			result = "duplicate_account"
		}
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.ErrorLevel, msg, alert)
		s.metrics.RecordFulfillment(ctx, providerName, result)
		return "", fmt.Errorf("create account for order %s: %w", order.OrderNo, err)
	}
	account.AccountID = accountID

	s.logger.Info("Tenant account created",
		zap.String("order_no", order.OrderNo),
		zap.String("account_id", accountID),
		zap.String("package_id", pkg.PackageID),
		zap.Bool("email_verified", account.IsEmailVerified),
	)

	s.recordSubscriber(ctx, account)

	if err := s.orders.LinkUser(ctx, order.OrderNo, accountID); err != nil {
		alert.Detail = map[string]string{"account_id": accountID, "error": err.Error()}
		raiseAlert(ctx, s.logger, s.alerter, s.metrics, zapcore.ErrorLevel,
			"Failed to link completed order to account", alert)
	}

	s.dispatch(ctx, s.emailsFor(account))
	s.metrics.RecordFulfillment(ctx, providerName, "account_created")
	return accountID, nil
}

func (s *FulfillmentService) buildAccount(order *domain.Order, pkg *domain.Package, trusted bool) (*domain.TenantAccount, error) {
	draft := order.DraftUserData
	now := s.now()

	intended := draft.IntendedAction
	if intended == "" {
		intended = "purchase"
	}

	a := &domain.TenantAccount{
		AccountID:          uuid.NewString(),
		TenantID:           order.TenantID,
		Name:               draft.Name,
		StudioName:         draft.StudioName,
		Slug:               strings.ToLower(strings.TrimSpace(draft.Slug)),
		Email:              strings.ToLower(strings.TrimSpace(draft.Email)),
		PasswordHash:       draft.HashedPassword,
		Phone:              draft.Phone,
		Address:            draft.Address,
		Role:               "admin",
		PackageType:        pkg.PackageID,
		IntendedAction:     intended,
		HeroTitle:          draft.StudioName,
		HeroSubtitle:       draft.Phone,
		Entitlement:        ComputeEntitlement(pkg),
		SubscriptionExpiry: now.Add(SubscriptionWindow),
		BillingInfo:        draft.BillingInfo,
		IsActive:           true,
		IsEmailVerified:    trusted,
		SourceOrderNo:      order.OrderNo,
		CreatedAt:          now,
	}

	if !trusted {
		token, err := newVerificationToken()
		if err != nil {
			return nil, fmt.Errorf("generate verification token: %w", err)
		}
		a.VerificationToken.String, a.VerificationToken.Valid = token, true
		a.VerificationTokenExpiry.Time, a.VerificationTokenExpiry.Valid = now.Add(VerificationTokenTTL), true
	}
	return a, nil
}

// recordSubscriber 尽力而为，重复与失败都不影响履约
func (s *FulfillmentService) recordSubscriber(ctx context.Context, a *domain.TenantAccount) {
	err := s.subscribers.CreateSubscriber(ctx, &domain.Subscriber{
		Email:        a.Email,
		Name:         a.Name,
		StudioName:   a.StudioName,
		PackageType:  a.PackageType,
		IsActive:     true,
		RegisteredAt: a.CreatedAt,
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicateSubscriber):
		s.logger.Debug("Subscriber already recorded", zap.String("email", a.Email))
	default:
		s.logger.Warn("Failed to record subscriber",
			zap.String("account_id", a.AccountID),
			zap.Error(err),
		)
	}
}

func (s *FulfillmentService) emailsFor(a *domain.TenantAccount) []Email {
	emails := []Email{{
		To:        a.Email,
		Template:  TemplateWelcomePhotographer,
		AccountID: a.AccountID,
		Data: map[string]any{
			"photographerName": a.Name,
			"studioName":       a.StudioName,
			"loginUrl":         s.baseURL + "/login",
		},
	}}
	if !a.IsEmailVerified && a.VerificationToken.Valid {
		emails = append(emails, Email{
			To:        a.Email,
			Template:  TemplateEmailVerification,
			AccountID: a.AccountID,
			Data: map[string]any{
				"name":            a.Name,
				"verificationUrl": VerificationURL(s.baseURL, a.VerificationToken.String, a.Email),
			},
		})
	}
	return emails
}

// dispatch 异步发送，不占用回调响应时间
func (s *FulfillmentService) dispatch(ctx context.Context, emails []Email) {
	if len(emails) == 0 {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic while sending email", zap.Any("panic", r))
			}
		}()

		for _, e := range emails {
			err := s.notifier.Send(sendCtx, e)
			s.metrics.RecordEmail(sendCtx, e.Template, err == nil)
			if err != nil {
				s.logger.Error("Failed to send email",
					zap.String("template", e.Template),
					zap.String("account_id", e.AccountID),
					zap.Error(err),
				)
			}
		}
	}()
}

// Wait blocks until all in-flight email dispatches finish.
func (s *FulfillmentService) Wait() {
	s.inflight.Wait()
}

// VerificationURL {baseURL}/api/auth/verify?token=...&email=...
func VerificationURL(baseURL, token, email string) string {
	return strings.TrimRight(baseURL, "/") + "/api/auth/verify?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email)
}

func newVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
