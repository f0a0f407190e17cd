package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

const sessionBucketPrefix = "session:"

// BoltStore persists sessions in a bbolt file, one bucket per user.
// Keys are big-endian unix nanos followed by the bucket sequence, so cursor
// order is chronological.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

// NewBoltStore opens (or creates) the session file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewMemoryStoreFailed("open", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, apperrors.NewMemoryStoreFailed("open", err)
	}
	return &BoltStore{db: db, logger: logger.Get()}, nil
}

func bucketName(userID string) []byte {
	return []byte(sessionBucketPrefix + userID)
}

func turnKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func keyTime(key []byte) time.Time {
	if len(key) < 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[:8])))
}

func (s *BoltStore) Append(ctx context.Context, userID string, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(userID))
		if err != nil {
			return err
		}
		for _, t := range turns {
			if t.Timestamp.IsZero() {
				t.Timestamp = time.Now()
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := b.Put(turnKey(t.Timestamp, seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewMemoryStoreFailed("append", err)
	}
	return nil
}

func (s *BoltStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var turns []Turn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(turns) < limit; k, v = c.Prev() {
			var t Turn
			if err := json.Unmarshal(v, &t); err != nil {
				s.logger.Warn("Skipping unreadable session turn",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				continue
			}
			turns = append(turns, t)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewMemoryStoreFailed("history", err)
	}

	// Cursor walked newest first
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *BoltStore) Clear(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(userID)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName(userID))
	})
	if err != nil {
		return apperrors.NewMemoryStoreFailed("clear", err)
	}
	return nil
}

func (s *BoltStore) Sessions(_ context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !bytes.HasPrefix(name, []byte(sessionBucketPrefix)) {
				return nil
			}
			last, _ := b.Cursor().Last()
			if last == nil {
				return nil
			}
			out = append(out, SessionInfo{
				UserID:     strings.TrimPrefix(string(name), sessionBucketPrefix),
				Turns:      b.Stats().KeyN,
				LastActive: keyTime(last),
			})
			return nil
		})
	})
	if err != nil {
		return nil, apperrors.NewMemoryStoreFailed("sessions", err)
	}
	return out, nil
}

func (s *BoltStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var empty [][]byte
		err := tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !bytes.HasPrefix(name, []byte(sessionBucketPrefix)) {
				return nil
			}
			c := b.Cursor()
			for k, _ := c.First(); k != nil && keyTime(k).Before(cutoff); k, _ = c.First() {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
			if k, _ := c.First(); k == nil {
				empty = append(empty, append([]byte(nil), name...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range empty {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return removed, apperrors.NewMemoryStoreFailed("prune", err)
	}
	return removed, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
