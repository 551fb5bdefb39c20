package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatdb/pkg/models"
)

// Tx is a single atomic unit of work. Writes accumulate in a Pebble
// indexed batch and become durable together on commit; reads observe the
// batch's own pending writes.
type Tx struct {
	s *Store
	r pebble.Reader
	b *pebble.Batch
}

// Update runs fn inside a read-write transaction. If fn returns an error
// the batch is discarded and nothing reaches the store; otherwise the
// batch commits synchronously.
func (s *Store) Update(fn func(tx *Tx) error) error {
	if !s.Ready() {
		return ErrNotOpen
	}
	b := s.db.NewIndexedBatch()
	defer b.Close()
	tx := &Tx{s: s, r: b, b: b}
	if err := fn(tx); err != nil {
		txAborts.Inc()
		return err
	}
	start := time.Now()
	if err := b.Commit(pebble.Sync); err != nil {
		txAborts.Inc()
		return fmt.Errorf("transaction commit: %w", err)
	}
	txCommits.Inc()
	commitDuration.Observe(time.Since(start).Seconds())
	return nil
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	if !s.Ready() {
		return ErrNotOpen
	}
	return fn(&Tx{s: s, r: s.db})
}

func (tx *Tx) writable() error {
	if tx.b == nil {
		return errors.New("write inside read-only transaction")
	}
	return nil
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	v, closer, err := tx.r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// GetConversation returns the conversation record for id.
func (tx *Tx) GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	v, err := tx.get(convKey(id))
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid conversation record %s: %w", id, err)
	}
	return c, nil
}

// PutConversation writes a conversation record and keeps the recency
// index in step: the previous index entry (if any) is removed in the same
// batch before the new one is written.
func (tx *Tx) PutConversation(c models.Conversation) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if old, err := tx.GetConversation(c.ID); err == nil {
		if old.UpdatedAt != c.UpdatedAt {
			if err := tx.b.Delete(convIdxKey(old.UpdatedAt, old.ID), nil); err != nil {
				return err
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := tx.b.Set(convKey(c.ID), data, nil); err != nil {
		return err
	}
	return tx.b.Set(convIdxKey(c.UpdatedAt, c.ID), []byte(c.ID), nil)
}

// ListConversations returns every conversation record, in key (id) order.
func (tx *Tx) ListConversations() ([]models.Conversation, error) {
	prefix := []byte(convPrefix)
	iter, err := tx.r.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.First(); iter.Valid(); iter.Next() {
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("invalid conversation record %s: %w", iter.Key(), err)
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// ListConversationsByRecency walks the updatedAt index from newest to
// oldest and resolves each entry to its record.
func (tx *Tx) ListConversationsByRecency() ([]models.Conversation, error) {
	prefix := []byte(convIdxPrefix)
	iter, err := tx.r.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.Last(); iter.Valid(); iter.Prev() {
		c, err := tx.GetConversation(string(iter.Value()))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// AppendMessage writes a new message record under its conversation. The
// key embeds the message's createdAt plus a monotonic sequence counter so
// two messages stamped in the same millisecond keep their insert order.
func (tx *Tx) AppendMessage(m models.ChatMessage) error {
	if err := tx.writable(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := msgKey(m.ConversationID, m.CreatedAt, atomic.AddUint64(&tx.s.seq, 1))
	if err := tx.b.Set(key, data, nil); err != nil {
		return err
	}
	return tx.b.Set(msgIDKey(m.ID), key, nil)
}

// UpsertMessage overwrites the record for m.ID in place, or appends it
// when the id is unknown.
func (tx *Tx) UpsertMessage(m models.ChatMessage) error {
	if err := tx.writable(); err != nil {
		return err
	}
	key, err := tx.get(msgIDKey(m.ID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tx.AppendMessage(m)
		}
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return tx.b.Set(key, data, nil)
}

// DeleteMessageByID removes the message record and its id entry. Unknown
// ids are a no-op.
func (tx *Tx) DeleteMessageByID(id string) error {
	if err := tx.writable(); err != nil {
		return err
	}
	key, err := tx.get(msgIDKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := tx.b.Delete(key, nil); err != nil {
		return err
	}
	return tx.b.Delete(msgIDKey(id), nil)
}

// ListMessages returns all messages of a conversation in createdAt order
// (the key order).
func (tx *Tx) ListMessages(conversationID string) ([]models.ChatMessage, error) {
	prefix := msgConvPrefix(conversationID)
	iter, err := tx.r.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.ChatMessage
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.ChatMessage
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message record %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// DeleteConversationCascade removes the conversation record, its recency
// index entry and every message referencing it, all in this transaction.
func (tx *Tx) DeleteConversationCascade(id string) error {
	if err := tx.writable(); err != nil {
		return err
	}
	msgs, err := tx.ListMessages(id)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := tx.DeleteMessageByID(m.ID); err != nil {
			return err
		}
	}
	if c, err := tx.GetConversation(id); err == nil {
		if err := tx.b.Delete(convIdxKey(c.UpdatedAt, c.ID), nil); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return tx.b.Delete(convKey(id), nil)
}
