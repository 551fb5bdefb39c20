package chat

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatdb/pkg/logger"
	"chatdb/pkg/models"
	"chatdb/pkg/store"
	"chatdb/pkg/utils"
)

// titleLimit is the number of characters of the first message used as the
// conversation title.
const titleLimit = 30

var (
	// ErrStorageRead marks a failed read-side transaction.
	ErrStorageRead = errors.New("storage read failed")
	// ErrStorageWrite marks a failed write-side transaction.
	ErrStorageWrite = errors.New("storage write failed")
)

// Chat is the facade over the conversation and message repositories. It
// owns the in-memory projection the UI observes: the current conversation
// id, that conversation's ordered messages, and the list of all
// conversations. The durable store is the source of truth; the projection
// is patched on every successful transaction (and, for AddMessage and
// RemoveMessagesFrom, optimistically before commit).
//
// Mutations assume a single logical writer; the projection may be read
// from any number of goroutines.
type Chat struct {
	store *store.Store

	mu            sync.RWMutex
	currentID     string
	messages      []models.ChatMessage
	conversations []models.Conversation

	watchMu  sync.Mutex
	watchers []chan Event

	// now is the clock used for createdAt/updatedAt stamps (ms)
	now func() int64
}

// New returns a Chat facade bound to an opened store.
func New(s *store.Store) *Chat {
	return &Chat{
		store: s,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// CreateConversation persists a new conversation, makes it current and
// leaves its (empty) message list loaded. Returns the new id.
func (c *Chat) CreateConversation(title string) (string, error) {
	now := c.now()
	conv := models.Conversation{
		ID:        utils.GenID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := c.store.Update(func(tx *store.Tx) error {
		return tx.PutConversation(conv)
	})
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", errors.Join(ErrStorageWrite, err))
	}

	c.mu.Lock()
	c.conversations = append(c.conversations, conv)
	sortByCreatedDesc(c.conversations)
	c.mu.Unlock()
	c.notify(EventConversations)

	if err := c.LoadMessages(conv.ID); err != nil {
		return "", err
	}
	logger.Info("conversation_created", "id", conv.ID)
	return conv.ID, nil
}

// LoadConversations reads every conversation, newest first, and replaces
// the in-memory list. An empty store is self-healing: exactly one fresh
// conversation is created so the application always has somewhere to
// append. The most recent conversation becomes current and its messages
// are loaded.
func (c *Chat) LoadConversations() error {
	var convs []models.Conversation
	err := c.store.View(func(tx *store.Tx) error {
		var e error
		convs, e = tx.ListConversations()
		return e
	})
	if err != nil {
		return fmt.Errorf("load conversations: %w", errors.Join(ErrStorageRead, err))
	}
	sortByCreatedDesc(convs)

	c.mu.Lock()
	c.conversations = convs
	c.mu.Unlock()
	c.notify(EventConversations)

	if len(convs) == 0 {
		_, err := c.CreateConversation("")
		return err
	}
	return c.LoadMessages(convs[0].ID)
}

// AddMessage appends a message to the current conversation, creating one
// first if none is current. The message is appended to the in-memory list
// before the durable write commits so callers see immediate feedback; a
// failed commit leaves that optimistic append in place (callers that need
// strict consistency should reload).
//
// The first message of a conversation also assigns the conversation title
// (first 30 characters of the content) and bumps updatedAt, in the same
// transaction as the message insert.
func (c *Chat) AddMessage(msg models.ChatMessage) (models.ChatMessage, error) {
	if c.CurrentConversationID() == "" {
		if _, err := c.CreateConversation(""); err != nil {
			return models.ChatMessage{}, err
		}
	}

	c.mu.Lock()
	msg.ID = utils.GenID()
	msg.ConversationID = c.currentID
	msg.CreatedAt = c.now()
	c.messages = append(c.messages, msg)
	first := len(c.messages) == 1

	var titled models.Conversation
	var retitle bool
	if first {
		for i := range c.conversations {
			if c.conversations[i].ID == c.currentID {
				c.conversations[i].Title = truncateTitle(msg.Content)
				c.conversations[i].UpdatedAt = c.now()
				titled = c.conversations[i]
				retitle = true
				break
			}
		}
	}
	c.mu.Unlock()
	c.notify(EventMessages)

	err := c.store.Update(func(tx *store.Tx) error {
		if err := tx.AppendMessage(msg); err != nil {
			return err
		}
		if retitle {
			return tx.PutConversation(titled)
		}
		return nil
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("append message: %w", errors.Join(ErrStorageWrite, err))
	}
	if retitle {
		c.notify(EventConversations)
	}
	logger.Debug("message_appended", "conversation", msg.ConversationID, "id", msg.ID, "role", msg.Role)
	return msg, nil
}

// LoadMessages replaces the in-memory message list with the stored
// messages of conversationID, ascending by createdAt, and marks that
// conversation current. This is the sole ordering contract for display.
func (c *Chat) LoadMessages(conversationID string) error {
	var msgs []models.ChatMessage
	err := c.store.View(func(tx *store.Tx) error {
		var e error
		msgs, e = tx.ListMessages(conversationID)
		return e
	})
	if err != nil {
		return fmt.Errorf("load messages: %w", errors.Join(ErrStorageRead, err))
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })

	c.mu.Lock()
	c.messages = msgs
	c.currentID = conversationID
	c.mu.Unlock()
	c.notify(EventMessages)
	return nil
}

// RemoveMessagesFrom deletes messageID and every message after it in the
// current in-memory order, in one transaction. An id not present in the
// list is a silent no-op. Supports "regenerate from here" / "edit and
// resend" flows.
func (c *Chat) RemoveMessagesFrom(messageID string) error {
	c.mu.Lock()
	idx := -1
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return nil
	}
	suffix := make([]string, 0, len(c.messages)-idx)
	for _, m := range c.messages[idx:] {
		suffix = append(suffix, m.ID)
	}
	c.messages = c.messages[:idx]
	c.mu.Unlock()
	c.notify(EventMessages)

	err := c.store.Update(func(tx *store.Tx) error {
		for _, id := range suffix {
			if err := tx.DeleteMessageByID(id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove messages: %w", errors.Join(ErrStorageWrite, err))
	}
	logger.Debug("messages_truncated", "from", messageID, "count", len(suffix))
	return nil
}

// DeleteConversation deletes the conversation and all its messages
// atomically. If it was current, the most recent remaining conversation
// becomes current and its messages are loaded; deleting the last
// conversation leaves the store with zero conversations and no current
// one.
func (c *Chat) DeleteConversation(conversationID string) error {
	if conversationID == "" {
		return nil
	}
	err := c.store.Update(func(tx *store.Tx) error {
		return tx.DeleteConversationCascade(conversationID)
	})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", errors.Join(ErrStorageWrite, err))
	}

	c.mu.Lock()
	kept := c.conversations[:0]
	for _, conv := range c.conversations {
		if conv.ID != conversationID {
			kept = append(kept, conv)
		}
	}
	c.conversations = kept
	next := ""
	wasCurrent := c.currentID == conversationID
	if wasCurrent {
		if len(kept) > 0 {
			next = kept[0].ID
		}
		c.currentID = next
		if next == "" {
			c.messages = nil
		}
	}
	c.mu.Unlock()
	c.notify(EventConversations)
	logger.Info("conversation_deleted", "id", conversationID)

	if wasCurrent {
		if next != "" {
			return c.LoadMessages(next)
		}
		c.notify(EventMessages)
	}
	return nil
}

// UpdateReasoning replaces msg's reasoning text. The record is replaced
// at its list position with a fresh value (identity replacement, so
// observers relying on change detection see a new object) and the full
// record is upserted durably. A nil message is a no-op.
func (c *Chat) UpdateReasoning(reasoning string, msg *models.ChatMessage) error {
	if msg == nil {
		return nil
	}
	updated := *msg
	updated.ReasoningContent = reasoning
	return c.updateInPlace(updated)
}

// UpdateMessage persists the full updated record, replacing it in the
// in-memory list at the matching id. A nil message is a no-op.
func (c *Chat) UpdateMessage(msg *models.ChatMessage) error {
	if msg == nil {
		return nil
	}
	return c.updateInPlace(*msg)
}

func (c *Chat) updateInPlace(updated models.ChatMessage) error {
	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == updated.ID {
			c.messages[i] = updated
			break
		}
	}
	c.mu.Unlock()
	c.notify(EventMessages)

	err := c.store.Update(func(tx *store.Tx) error {
		return tx.UpsertMessage(updated)
	})
	if err != nil {
		return fmt.Errorf("update message: %w", errors.Join(ErrStorageWrite, err))
	}
	return nil
}

// CurrentConversationID returns the id of the current conversation, or
// "" when none exists.
func (c *Chat) CurrentConversationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentID
}

// Messages returns a copy of the current conversation's ordered messages.
func (c *Chat) Messages() []models.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// Conversations returns a copy of all conversations, newest first.
func (c *Chat) Conversations() []models.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Conversation(nil), c.conversations...)
}

func sortByCreatedDesc(convs []models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].CreatedAt > convs[j].CreatedAt })
}

// truncateTitle derives a conversation title from message content,
// counting characters rather than bytes.
func truncateTitle(content string) string {
	r := []rune(content)
	if len(r) <= titleLimit {
		return content
	}
	return string(r[:titleLimit])
}
