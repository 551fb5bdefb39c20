package chat

import (
	"strings"
	"testing"

	"chatdb/pkg/models"
	"chatdb/pkg/store"
)

// newTestChat returns a facade over a fresh store with a deterministic,
// strictly increasing millisecond clock.
func newTestChat(t *testing.T) *Chat {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	c := New(s)
	var tick int64 = 1_700_000_000_000
	c.now = func() int64 {
		tick += 10
		return tick
	}
	return c
}

func (c *Chat) storedMessages(t *testing.T, conversationID string) []models.ChatMessage {
	t.Helper()
	var msgs []models.ChatMessage
	err := c.store.View(func(tx *store.Tx) error {
		var e error
		msgs, e = tx.ListMessages(conversationID)
		return e
	})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	return msgs
}

func (c *Chat) storedConversation(t *testing.T, id string) models.Conversation {
	t.Helper()
	var conv models.Conversation
	err := c.store.View(func(tx *store.Tx) error {
		var e error
		conv, e = tx.GetConversation(id)
		return e
	})
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	return conv
}

func TestLoadConversationsSeedsEmptyStore(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	convs := c.Conversations()
	if len(convs) != 1 {
		t.Fatalf("expected exactly 1 conversation; got %d", len(convs))
	}
	if c.CurrentConversationID() != convs[0].ID {
		t.Fatalf("seeded conversation is not current")
	}
	if len(c.Messages()) != 0 {
		t.Fatalf("expected empty message list")
	}
	// the seeded conversation must be durable, not just in memory
	c.storedConversation(t, convs[0].ID)
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	contents := []string{"one", "two", "three", "four", "five"}
	for _, s := range contents {
		if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: s}); err != nil {
			t.Fatalf("AddMessage(%s): %v", s, err)
		}
	}
	if err := c.LoadMessages(c.CurrentConversationID()); err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != len(contents) {
		t.Fatalf("expected %d messages; got %d", len(contents), len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Fatalf("order broken at %d: got %q", i, m.Content)
		}
		if i > 0 && msgs[i-1].CreatedAt > m.CreatedAt {
			t.Fatalf("createdAt not non-decreasing at %d", i)
		}
	}
}

func TestConversationListSortedByRecency(t *testing.T) {
	c := newTestChat(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.CreateConversation("")
		if err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
		ids = append(ids, id)
	}
	convs := c.Conversations()
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations; got %d", len(convs))
	}
	for i := 1; i < len(convs); i++ {
		if convs[i-1].CreatedAt < convs[i].CreatedAt {
			t.Fatalf("list not descending by createdAt at %d", i)
		}
	}
	if convs[0].ID != ids[2] {
		t.Fatalf("newest conversation not first")
	}
	if c.CurrentConversationID() != ids[2] {
		t.Fatalf("latest created conversation should be current")
	}
}

func TestFirstMessageDerivesTitle(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	long := strings.Repeat("héllo ", 10) // 60 chars, multibyte
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: long}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	want := string([]rune(long)[:30])
	conv := c.Conversations()[0]
	if conv.Title != want {
		t.Fatalf("title %q; want %q", conv.Title, want)
	}
	if got := c.storedConversation(t, conv.ID); got.Title != want {
		t.Fatalf("durable title %q; want %q", got.Title, want)
	}

	// later appends never touch the title
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleAssistant, Content: "something else"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if got := c.Conversations()[0].Title; got != want {
		t.Fatalf("second append changed title to %q", got)
	}
}

func TestTitleUpdateCommitsWithMessage(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	before := c.Conversations()[0]
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	after := c.storedConversation(t, before.ID)
	if after.UpdatedAt <= before.UpdatedAt {
		t.Fatalf("updatedAt not bumped on title assignment")
	}
	if after.CreatedAt != before.CreatedAt {
		t.Fatalf("createdAt must be immutable")
	}
}

func TestAddMessageCreatesConversationWhenNoneCurrent(t *testing.T) {
	c := newTestChat(t)
	m, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if c.CurrentConversationID() == "" {
		t.Fatalf("no conversation created")
	}
	if m.ConversationID != c.CurrentConversationID() {
		t.Fatalf("message bound to %q; current is %q", m.ConversationID, c.CurrentConversationID())
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	c := newTestChat(t)
	first, err := c.CreateConversation("")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "keep me"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	second, err := c.CreateConversation("")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "doomed"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := c.DeleteConversation(second); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if got := c.storedMessages(t, second); len(got) != 0 {
		t.Fatalf("messages of deleted conversation survived: %d", len(got))
	}
	for _, conv := range c.Conversations() {
		if conv.ID == second {
			t.Fatalf("deleted conversation still listed")
		}
	}
	if c.CurrentConversationID() != first {
		t.Fatalf("current should fall back to the remaining conversation")
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Content != "keep me" {
		t.Fatalf("projection not reloaded for new current: %+v", msgs)
	}
}

func TestDeleteLastConversationLeavesNone(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	id := c.CurrentConversationID()
	if err := c.DeleteConversation(id); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if len(c.Conversations()) != 0 {
		t.Fatalf("expected zero conversations")
	}
	if c.CurrentConversationID() != "" {
		t.Fatalf("expected no current conversation")
	}
	if len(c.Messages()) != 0 {
		t.Fatalf("expected empty message list")
	}
}

func TestTruncateFromMiddle(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	var ids []string
	for _, s := range []string{"m1", "m2", "m3", "m4", "m5"} {
		m, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: s})
		if err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if err := c.RemoveMessagesFrom(ids[2]); err != nil {
		t.Fatalf("RemoveMessagesFrom: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].Content != "m1" || msgs[1].Content != "m2" {
		t.Fatalf("in-memory suffix truncation wrong: %+v", msgs)
	}
	stored := c.storedMessages(t, c.CurrentConversationID())
	if len(stored) != 2 || stored[0].Content != "m1" || stored[1].Content != "m2" {
		t.Fatalf("durable suffix truncation wrong: %+v", stored)
	}
}

func TestTruncateUnknownIDIsNoop(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "stay"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := c.RemoveMessagesFrom("no-such-id"); err != nil {
		t.Fatalf("expected no-op; got %v", err)
	}
	if len(c.Messages()) != 1 {
		t.Fatalf("message list changed by unknown-id truncate")
	}
}

func TestUpdateReasoningReplacesRecordInPlace(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "q"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	reply, err := c.AddMessage(models.ChatMessage{Role: models.RoleAssistant, Content: "a"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := c.UpdateReasoning("thinking...", &reply); err != nil {
		t.Fatalf("UpdateReasoning: %v", err)
	}
	msgs := c.Messages()
	if msgs[1].ID != reply.ID {
		t.Fatalf("identity changed: %s != %s", msgs[1].ID, reply.ID)
	}
	if msgs[1].ReasoningContent != "thinking..." {
		t.Fatalf("reasoning not updated in memory: %q", msgs[1].ReasoningContent)
	}
	stored := c.storedMessages(t, c.CurrentConversationID())
	if stored[1].ReasoningContent != "thinking..." {
		t.Fatalf("durable record mismatch: %q", stored[1].ReasoningContent)
	}
	if len(stored) != 2 {
		t.Fatalf("update duplicated a record: %d", len(stored))
	}
}

func TestUpdateNilMessageIsNoop(t *testing.T) {
	c := newTestChat(t)
	if err := c.UpdateMessage(nil); err != nil {
		t.Fatalf("UpdateMessage(nil): %v", err)
	}
	if err := c.UpdateReasoning("x", nil); err != nil {
		t.Fatalf("UpdateReasoning(nil): %v", err)
	}
}

func TestWatchObservesMutations(t *testing.T) {
	c := newTestChat(t)
	ch := c.Watch()
	if _, err := c.CreateConversation(""); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Fatalf("no event delivered for conversation creation")
	}
}

// Full lifecycle: empty store through append, title derivation and
// truncation.
func TestLifecycleScenario(t *testing.T) {
	c := newTestChat(t)
	if err := c.LoadConversations(); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	if len(c.Conversations()) != 1 || c.CurrentConversationID() == "" || len(c.Messages()) != 0 {
		t.Fatalf("unexpected initial state")
	}

	first, err := c.AddMessage(models.ChatMessage{Role: models.RoleUser, Content: "Hello world, this is a test"})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if got := c.Conversations()[0].Title; got != "Hello world, this is a test" {
		t.Fatalf("title %q", got)
	}
	if len(c.Messages()) != 1 {
		t.Fatalf("expected 1 message")
	}

	if _, err := c.AddMessage(models.ChatMessage{Role: models.RoleAssistant, Content: "Hi"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if len(c.Messages()) != 2 {
		t.Fatalf("expected 2 messages")
	}
	if got := c.Conversations()[0].Title; got != "Hello world, this is a test" {
		t.Fatalf("title changed by second append: %q", got)
	}

	if err := c.RemoveMessagesFrom(first.ID); err != nil {
		t.Fatalf("RemoveMessagesFrom: %v", err)
	}
	if len(c.Messages()) != 0 {
		t.Fatalf("expected 0 messages after truncating from the first")
	}
	// title assignment is not rolled back by truncation
	if got := c.Conversations()[0].Title; got != "Hello world, this is a test" {
		t.Fatalf("title unexpectedly reset: %q", got)
	}
}
