package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot consumes the long-poll update stream. The Mini App carries the whole
// product surface, so the bot only has to settle Stars payments.
type Bot struct {
	api      *tgbotapi.BotAPI
	payments *Payments
	log      *slog.Logger
}

func NewBot(api *tgbotapi.BotAPI, payments *Payments, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		payments: payments,
		log:      log,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.PreCheckoutQuery != nil {
				if err := b.payments.HandlePreCheckout(update.PreCheckoutQuery); err != nil {
					b.log.Error("pre-checkout failed", "err", err)
				}
			} else if update.Message != nil && update.Message.SuccessfulPayment != nil {
				b.handleSuccessfulPayment(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	if from == nil {
		b.log.Warn("payment without sender", "chat_id", msg.Chat.ID)
		return
	}
	if err := b.payments.HandleSuccessfulPayment(ctx, from.ID, from.UserName, from.FirstName, from.LastName, msg.SuccessfulPayment); err != nil {
		b.log.Error("settle payment failed", "telegram_id", from.ID, "err", err)
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, "Payment received! Your credits are ready in Pixel Pop.")
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send payment confirmation failed", "err", err)
	}
}
