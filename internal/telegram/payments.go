package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mrvasilyev/pixel-pop-v2/internal/models"
	"github.com/mrvasilyev/pixel-pop-v2/internal/paywall"
	"github.com/mrvasilyev/pixel-pop-v2/internal/repository"
)

// starsCurrency is the Telegram Stars currency code. Stars invoices carry an
// empty provider token.
const starsCurrency = "XTR"

type invoicePayload struct {
	PlanID string `json:"plan_id"`
}

// Payments issues Stars invoice links for the Mini App and settles the
// resulting payments arriving over the bot update channel.
type Payments struct {
	api      *tgbotapi.BotAPI
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	log      *slog.Logger
}

func NewPayments(api *tgbotapi.BotAPI, users *repository.UserRepository, payments *repository.PaymentRepository, log *slog.Logger) *Payments {
	return &Payments{
		api:      api,
		users:    users,
		payments: payments,
		log:      log,
	}
}

// CreateInvoiceLink asks Bot API for a shareable invoice link the Mini App
// opens via openInvoice.
func (p *Payments) CreateInvoiceLink(ctx context.Context, plan paywall.Plan, telegramID int64) (string, error) {
	payload, err := json.Marshal(invoicePayload{PlanID: plan.ID})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	prices, err := json.Marshal([]tgbotapi.LabeledPrice{
		{Label: plan.Name, Amount: plan.Stars},
	})
	if err != nil {
		return "", fmt.Errorf("marshal prices: %w", err)
	}

	resp, err := p.api.MakeRequest("createInvoiceLink", tgbotapi.Params{
		"title":       plan.Name,
		"description": fmt.Sprintf("%d generations for Pixel Pop", plan.StandardCredits+plan.PremiumCredits),
		"payload":     string(payload),
		"currency":    starsCurrency,
		"prices":      string(prices),
	})
	if err != nil {
		return "", fmt.Errorf("create invoice link: %w", err)
	}

	var link string
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("parse invoice link: %w", err)
	}
	return link, nil
}

// HandlePreCheckout approves the checkout if the payload still resolves to a
// known plan.
func (p *Payments) HandlePreCheckout(query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	var payload invoicePayload
	if err := json.Unmarshal([]byte(query.InvoicePayload), &payload); err != nil || paywall.PlanByID(payload.PlanID) == nil {
		response.OK = false
		response.ErrorMessage = "This plan is no longer available"
	}

	if _, err := p.api.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment credits the payer's balance and records the charge.
func (p *Payments) HandleSuccessfulPayment(ctx context.Context, telegramID int64, username, firstName, lastName string, payment *tgbotapi.SuccessfulPayment) error {
	var payload invoicePayload
	if err := json.Unmarshal([]byte(payment.InvoicePayload), &payload); err != nil {
		return fmt.Errorf("parse payment payload: %w", err)
	}

	plan := paywall.PlanByID(payload.PlanID)
	if plan == nil {
		return fmt.Errorf("unknown plan in payment payload: %q", payload.PlanID)
	}

	if existing, err := p.payments.FindByProviderCharge(ctx, "telegram", payment.TelegramPaymentChargeID); err != nil {
		return fmt.Errorf("check existing payment: %w", err)
	} else if existing != nil {
		p.log.Warn("duplicate payment ignored", "charge_id", payment.TelegramPaymentChargeID)
		return nil
	}

	user, _, err := p.users.Ensure(ctx, telegramID, username, firstName, lastName)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	if err := p.users.AddCredits(ctx, user.ID, plan.StandardCredits, plan.PremiumCredits); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}

	raw, _ := json.Marshal(payment)
	record := &models.Payment{
		UserID:         user.ID,
		PlanID:         plan.ID,
		Provider:       "telegram",
		ProviderCharge: payment.TelegramPaymentChargeID,
		Currency:       payment.Currency,
		Amount:         payment.TotalAmount,
		Status:         "paid",
		RawPayload:     string(raw),
	}
	if err := p.payments.Create(ctx, record); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	p.log.Info("payment settled",
		"user_id", user.ID,
		"plan_id", plan.ID,
		"stars", payment.TotalAmount)
	return nil
}
