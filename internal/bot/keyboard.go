package bot

import (
	"fmt"
	"strings"

	"github.com/adamscao/ovpnbot/internal/catalog"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes
const (
	downloadPrefix = "download_"
	pagePrefix     = "page_"
	pageInfoData   = "page_info"

	// maxCallbackData is Telegram's limit on callback_data in bytes
	maxCallbackData = 64
)

// renderPage builds the listing text and inline keyboard of a catalog page
func (b *Bot) renderPage(p catalog.Page) (string, tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder

	sb.WriteString(b.loc.Tf("catalog_header", map[string]any{
		"Page":  p.PageIndex + 1,
		"Total": p.TotalPages,
	}))
	sb.WriteString("\n\n")

	start := p.PageIndex*b.catalog.PageSize() + 1
	for i, e := range p.Items {
		sb.WriteString(b.loc.Tf("catalog_item", map[string]any{
			"N":        start + i,
			"Username": escape(e.Username),
			"Size":     catalog.FormatSize(e.SizeKB),
		}))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(b.loc.Tf("catalog_total", map[string]any{"Count": p.TotalCount}))
	sb.WriteString("\n")
	sb.WriteString(b.loc.T("catalog_hint"))

	return sb.String(), b.pageKeyboard(p)
}

// pageKeyboard has one download button per entry whose name fits in callback
// data and, when there is more than one page, a navigation row: back,
// position, next.
func (b *Bot) pageKeyboard(p catalog.Page) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Items)+1)

	for _, e := range p.Items {
		data := downloadPrefix + e.Username
		if len(data) > maxCallbackData {
			// Telegram rejects the whole message otherwise; the name stays in the text
			continue
		}
		text := fmt.Sprintf("📁 %s (%s)", e.Username, catalog.FormatSize(e.SizeKB))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(text, data),
		))
	}

	if p.TotalPages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if p.HasPrev {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(b.loc.T("nav_prev"), fmt.Sprintf("%s%d", pagePrefix, p.PageIndex-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", p.PageIndex+1, p.TotalPages), pageInfoData))
		if p.HasNext {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(b.loc.T("nav_next"), fmt.Sprintf("%s%d", pagePrefix, p.PageIndex+1)))
		}
		rows = append(rows, nav)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
