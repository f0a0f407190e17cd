package telegram

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

// MaxMessageLength is Telegram's limit for one text message
const MaxMessageLength = 4096

// SplitMessage breaks text into chunks of at most limit runes, preferring
// paragraph, then line, then word boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		head := text[:cut]

		split := strings.LastIndex(head, "\n\n")
		if split <= 0 {
			split = strings.LastIndex(head, "\n")
		}
		if split <= 0 {
			split = strings.LastIndex(head, " ")
		}
		if split <= 0 {
			split = cut
		}

		chunks = append(chunks, strings.TrimSpace(text[:split]))
		text = strings.TrimSpace(text[split:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index of the n-th rune
func byteOffset(s string, n int) int {
	i := 0
	for idx := range s {
		if i == n {
			return idx
		}
		i++
	}
	return len(s)
}

// Replier is the part of tele.Context used to answer a chat
type Replier interface {
	Send(what interface{}, opts ...interface{}) error
	Chat() *tele.Chat
}

// SendReply sends text as Telegram HTML, split to fit the message limit. A chunk
// Telegram refuses to parse is resent as plain text.
func SendReply(c Replier, text string, asHTML bool) error {
	log := logger.Get()

	body := text
	if asHTML {
		body = SanitizeHTML(text)
	}

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	for _, chunk := range SplitMessage(body, MaxMessageLength) {
		if !asHTML {
			if err := c.Send(chunk); err != nil {
				return apperrors.NewTelegramSendFailed(chatID, err)
			}
			continue
		}

		err := c.Send(chunk, tele.ModeHTML)
		if err == nil {
			continue
		}
		log.Warn("HTML send failed, retrying as plain text",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		if err := c.Send(StripHTML(chunk)); err != nil {
			return apperrors.NewTelegramSendFailed(chatID, err)
		}
	}
	return nil
}
