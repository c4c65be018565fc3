package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adamscao/ovpnbot/internal/catalog"
	"github.com/adamscao/ovpnbot/internal/issuance"
	"github.com/adamscao/ovpnbot/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxDetailLen keeps error diagnostics well inside Telegram's 4096 character
// message limit.
const maxDetailLen = 3000

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	ctx = actorContext(ctx, msg.From.ID)

	if !msg.IsCommand() {
		if !b.authorized(ctx, msg.From.ID, "message") {
			b.reply(ctx, msg.Chat.ID, b.loc.T("unauthorized"))
			return
		}
		b.echo(ctx, msg)
		return
	}

	command := msg.Command()
	switch command {
	case "start":
		b.reply(ctx, msg.Chat.ID, b.loc.T("start_text"))
		return
	case "help":
		b.reply(ctx, msg.Chat.ID, b.loc.T("help_text"))
		return
	}

	if !b.authorized(ctx, msg.From.ID, "/"+command) {
		b.reply(ctx, msg.Chat.ID, b.loc.T("unauthorized"))
		return
	}

	switch command {
	case "info":
		b.cmdInfo(ctx, msg)
	case "create_user":
		b.cmdCreateUser(ctx, msg)
	case "get_all_users":
		b.cmdGetAllUsers(ctx, msg)
	default:
		b.echo(ctx, msg)
	}
}

func (b *Bot) echo(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, b.loc.Tf("echo", map[string]any{"Text": msg.Text}))
	b.send(ctx, out)
}

func (b *Bot) cmdInfo(ctx context.Context, msg *tgbotapi.Message) {
	info := b.host.Collect()
	host := info.Host
	if host == "" {
		host = b.loc.T("host_unknown")
	}

	b.reply(ctx, msg.Chat.ID, b.loc.Tf("info_text", map[string]any{
		"Host":      escape(host),
		"Platform":  escape(info.Platform),
		"GoVersion": escape(info.GoVersion),
		"Time":      info.Time,
	}))
}

func (b *Bot) cmdCreateUser(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.reply(ctx, msg.Chat.ID, b.loc.T("create_usage"))
		return
	}
	username := args[0]

	status, err := b.send(ctx, b.html(msg.Chat.ID, b.loc.T("creating_user")))
	if err != nil {
		return
	}

	res, err := b.creator.CreateUser(ctx, username)
	if err != nil {
		b.edit(ctx, msg.Chat.ID, status.MessageID, b.issuanceErrorText(err))
		return
	}

	file := filepath.Base(res.Path)
	created := b.loc.Tf("user_created", map[string]any{"Username": escape(res.Username), "File": escape(file)})
	b.edit(ctx, msg.Chat.ID, status.MessageID, created+"\n\n"+b.loc.T("user_created_sending"))

	if _, err := b.sendConfig(ctx, msg.Chat.ID, res.Username); err != nil {
		b.edit(ctx, msg.Chat.ID, status.MessageID, created+"\n\n"+
			b.loc.Tf("user_created_send_failed", map[string]any{"Error": escape(err.Error())}))
		return
	}

	b.edit(ctx, msg.Chat.ID, status.MessageID, created+"\n\n"+b.loc.T("user_created_sent"))
}

// issuanceErrorText renders a CreateUser failure for the chat
func (b *Bot) issuanceErrorText(err error) string {
	e, ok := issuance.AsError(err)
	if !ok {
		return b.loc.Tf("command_failed", map[string]any{"Error": escape(truncate(err.Error()))})
	}

	data := map[string]any{
		"Username": escape(e.Username),
		"Stage":    e.Stage,
		"Detail":   escape(truncate(e.Detail)),
	}

	switch e.Kind {
	case issuance.KindInvalidUsername:
		return b.loc.T("invalid_username")
	case issuance.KindCANotAvailable:
		return b.loc.T("ca_not_available")
	case issuance.KindUserAlreadyExists:
		return b.loc.Tf("user_exists", data)
	case issuance.KindConfigAssemblyFailed:
		if e.Partial {
			return b.loc.Tf("partial_issuance", data)
		}
	}
	return b.loc.Tf("issuance_failed", data)
}

func (b *Bot) cmdGetAllUsers(ctx context.Context, msg *tgbotapi.Message) {
	page, err := b.catalog.Page(0)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, b.catalogErrorText(err))
		return
	}

	if page.TotalCount == 0 {
		b.reply(ctx, msg.Chat.ID, b.loc.T("catalog_empty"))
		return
	}

	text, keyboard := b.renderPage(page)
	out := b.html(msg.Chat.ID, text)
	out.ReplyMarkup = keyboard
	b.send(ctx, out)
}

func (b *Bot) catalogErrorText(err error) string {
	if errors.Is(err, catalog.ErrCatalogDirMissing) {
		return b.loc.T("catalog_dir_missing")
	}
	return b.loc.Tf("command_failed", map[string]any{"Error": escape(err.Error())})
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	ctx = actorContext(ctx, cq.From.ID)

	if !b.authorized(ctx, cq.From.ID, "callback "+cq.Data) {
		b.answer(ctx, cq.ID, b.loc.T("unauthorized_alert"), true)
		if cq.Message != nil {
			b.reply(ctx, cq.Message.Chat.ID, b.loc.T("unauthorized"))
		}
		return
	}

	switch {
	case cq.Data == pageInfoData:
		b.answer(ctx, cq.ID, b.loc.T("page_info"), false)
	case strings.HasPrefix(cq.Data, pagePrefix):
		b.callbackPage(ctx, cq, strings.TrimPrefix(cq.Data, pagePrefix))
	case strings.HasPrefix(cq.Data, downloadPrefix):
		b.callbackDownload(ctx, cq, strings.TrimPrefix(cq.Data, downloadPrefix))
	default:
		b.answer(ctx, cq.ID, "", false)
	}
}

func (b *Bot) callbackPage(ctx context.Context, cq *tgbotapi.CallbackQuery, raw string) {
	pageIndex, err := strconv.Atoi(raw)
	if err != nil || cq.Message == nil {
		b.answer(ctx, cq.ID, b.loc.Tf("error_alert", map[string]any{"Error": raw}), true)
		return
	}

	page, err := b.catalog.Page(pageIndex)
	if err == nil && page.TotalCount > 0 && (pageIndex < 0 || pageIndex >= page.TotalPages) {
		// stale or forged keyboard: show the nearest existing page
		pageIndex = min(max(pageIndex, 0), page.TotalPages-1)
		page, err = b.catalog.Page(pageIndex)
	}
	if err != nil {
		b.answer(ctx, cq.ID, b.loc.Tf("error_alert", map[string]any{"Error": err.Error()}), true)
		return
	}

	if page.TotalCount == 0 {
		b.edit(ctx, cq.Message.Chat.ID, cq.Message.MessageID, b.loc.T("catalog_empty"))
		b.answer(ctx, cq.ID, "", false)
		return
	}

	text, keyboard := b.renderPage(page)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cq.Message.Chat.ID, cq.Message.MessageID, text, keyboard)
	edit.ParseMode = tgbotapi.ModeHTML
	b.send(ctx, edit)

	b.answer(ctx, cq.ID, b.loc.Tf("page_switched", map[string]any{"Page": pageIndex + 1}), false)
}

func (b *Bot) callbackDownload(ctx context.Context, cq *tgbotapi.CallbackQuery, username string) {
	if cq.Message == nil {
		b.answer(ctx, cq.ID, "", false)
		return
	}

	file, err := b.sendConfig(ctx, cq.Message.Chat.ID, username)
	if err != nil {
		text := b.loc.Tf("error_alert", map[string]any{"Error": err.Error()})
		if errors.Is(err, catalog.ErrConfigFileNotFound) {
			text = b.loc.Tf("file_not_found", map[string]any{"Username": username})
		}
		b.answer(ctx, cq.ID, text, true)
		return
	}

	b.answer(ctx, cq.ID, b.loc.Tf("file_sent", map[string]any{"File": file}), false)
}

// sendConfig uploads username's client config as a document and audits it.
// It returns the name of the sent file.
func (b *Bot) sendConfig(ctx context.Context, chatID int64, username string) (string, error) {
	path, data, err := b.catalog.ReadUserConfig(username)
	if err != nil {
		return "", err
	}

	file := filepath.Base(path)
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: file, Bytes: data})
	doc.Caption = b.loc.Tf("file_caption", map[string]any{"Username": username})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error(ctx, "failed to send config", "username", username, "error", err)
		return "", fmt.Errorf("failed to send document: %w", err)
	}

	b.trail.Record(ctx, &models.AuditLog{
		Action:   models.ActionConfigDownload,
		Username: username,
		Success:  true,
		Details:  fmt.Sprintf(`{"path":%q}`, path),
	})
	return file, nil
}

func (b *Bot) html(chatID int64, text string) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = tgbotapi.ModeHTML
	return out
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, b.html(chatID, text))
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	b.send(ctx, edit)
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	if _, err := b.api.Request(cb); err != nil {
		b.logger.Warn(ctx, "failed to answer callback", "error", err)
	}
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m, err := b.api.Send(c)
	if err != nil {
		b.logger.Error(ctx, "failed to send message", "error", err)
	}
	return m, err
}

func truncate(s string) string {
	if len(s) <= maxDetailLen {
		return s
	}
	// keep the tail, where tools print the error
	return "…" + strings.ToValidUTF8(s[len(s)-maxDetailLen:], "")
}
