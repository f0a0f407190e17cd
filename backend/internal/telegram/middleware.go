package telegram

import (
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

// RecoverMiddleware catches panics in handlers and keeps the bot running
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Get().Error("Panic recovered in handler",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()
		return next(c)
	}
}

// AllowlistMiddleware drops updates from senders not in allowed. An empty list allows everyone.
func AllowlistMiddleware(allowed []int64, onReject tele.HandlerFunc) tele.MiddlewareFunc {
	set := make(map[int64]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if len(set) == 0 {
			return next
		}
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return nil
			}
			if _, ok := set[user.ID]; !ok {
				logger.Get().Warn("Rejected update from unknown sender",
					zap.Int64("user_id", user.ID),
					zap.Error(apperrors.ErrTelegramUnauthorized),
				)
				if onReject != nil {
					return onReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// RateLimitMiddleware enforces a minimum interval between messages from the same user
func RateLimitMiddleware(interval time.Duration, onLimited tele.HandlerFunc) tele.MiddlewareFunc {
	var (
		lastSeen = make(map[int64]time.Time)
		mu       sync.Mutex
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || interval <= 0 {
				return next(c)
			}

			now := time.Now()
			mu.Lock()
			if last, ok := lastSeen[user.ID]; ok && now.Sub(last) < interval {
				mu.Unlock()
				logger.Get().Warn("Rate limited", zap.Int64("user_id", user.ID))
				if onLimited != nil {
					_ = onLimited(c)
				}
				return nil
			}
			lastSeen[user.ID] = now
			mu.Unlock()
			return next(c)
		}
	}
}

// LoggingMiddleware logs each update with its latency
func LoggingMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		err := next(c)

		fields := []zap.Field{
			zap.String("kind", updateKind(c.Update())),
			zap.Duration("duration", time.Since(start)),
		}
		if u := c.Sender(); u != nil {
			fields = append(fields, zap.Int64("user_id", u.ID))
		}
		if ch := c.Chat(); ch != nil {
			fields = append(fields, zap.Int64("chat_id", ch.ID))
		}
		if err != nil {
			logger.Get().Warn("Update handled with error", append(fields, zap.Error(err))...)
			return err
		}
		logger.Get().Debug("Update handled", fields...)
		return nil
	}
}

func updateKind(u tele.Update) string {
	switch {
	case u.Callback != nil:
		return "callback"
	case u.Message != nil && u.Message.Document != nil:
		return "document"
	case u.Message != nil:
		return "message"
	case u.Query != nil:
		return "inline_query"
	}
	return "other"
}
