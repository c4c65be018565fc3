// Package bot is the Telegram front end: it maps chat commands and inline
// keyboard callbacks onto the issuance and catalog services.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/auth"
	"github.com/adamscao/ovpnbot/internal/catalog"
	"github.com/adamscao/ovpnbot/internal/i18n"
	"github.com/adamscao/ovpnbot/internal/issuance"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/adamscao/ovpnbot/internal/sysinfo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender delivers outgoing messages. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateSource produces incoming updates. *tgbotapi.BotAPI implements it.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UserCreator runs the create-user pipeline
type UserCreator interface {
	CreateUser(ctx context.Context, username string) (*issuance.IssuedConfig, error)
}

// Catalog reads issued client configs
type Catalog interface {
	PageSize() int
	Page(pageIndex int) (catalog.Page, error)
	ReadUserConfig(username string) (string, []byte, error)
}

// HostInfo describes the server for /info
type HostInfo interface {
	Collect() sysinfo.Info
}

// Options wires the bot to its collaborators
type Options struct {
	Sender      Sender
	Updates     UpdateSource
	Creator     UserCreator
	Catalog     Catalog
	Host        HostInfo
	AllowList   *auth.AllowList
	Localizer   *i18n.Localizer
	Trail       *audit.Trail
	Logger      logging.Logger
	PollTimeout int
}

// Bot dispatches Telegram updates
type Bot struct {
	api         Sender
	updates     UpdateSource
	creator     UserCreator
	catalog     Catalog
	host        HostInfo
	allow       *auth.AllowList
	loc         *i18n.Localizer
	trail       *audit.Trail
	logger      logging.Logger
	pollTimeout int

	wg sync.WaitGroup
}

// New creates a new bot
func New(opts Options) *Bot {
	if opts.AllowList == nil {
		opts.AllowList = auth.NewAllowList(nil)
	}
	return &Bot{
		api:         opts.Sender,
		updates:     opts.Updates,
		creator:     opts.Creator,
		catalog:     opts.Catalog,
		host:        opts.Host,
		allow:       opts.AllowList,
		loc:         opts.Localizer,
		trail:       opts.Trail,
		logger:      opts.Logger.With("component", "bot"),
		pollTimeout: opts.PollTimeout,
	}
}

// Run long-polls for updates until ctx is cancelled. Each update is handled
// in its own goroutine so a slow certificate issuance never blocks catalog
// browsing. Run returns after in-flight handlers finish.
func (b *Bot) Run(ctx context.Context) error {
	// pending updates are dropped like a fresh start
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	if b.allow.Open() {
		b.logger.Warn(ctx, "allow-list is empty, every Telegram user may issue credentials")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.updates.GetUpdatesChan(u)

	b.logger.Info(ctx, "bot started")

	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info(context.Background(), "bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches one update. Panics are recovered and logged.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error(ctx, "panic recovered in update handler",
				"update_id", update.UpdateID, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// authorized applies the allow-list and records refused attempts
func (b *Bot) authorized(ctx context.Context, userID int64, what string) bool {
	if b.allow.Allowed(userID) {
		return true
	}

	b.logger.Warn(ctx, "unauthorized Telegram user", "user_id", userID, "request", what)
	b.trail.Record(ctx, &models.AuditLog{
		Action:   models.ActionAuthFailed,
		Success:  false,
		ErrorMsg: "user not in allow-list: " + what,
	})
	return false
}

func actorContext(ctx context.Context, userID int64) context.Context {
	return audit.WithActor(ctx, models.SourceTelegram, strconv.FormatInt(userID, 10))
}
