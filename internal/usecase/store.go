package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"careerdesk/internal/domain"
	"careerdesk/internal/integrations/backend"
)

const (
	defaultSyncConcurrency = 1
	minLocalReplyDelay     = 700 * time.Millisecond
	maxLocalReplyDelay     = 1500 * time.Millisecond
)

// localReply is the canned response for conversations with no backend
// session. It is produced after a short randomized delay so local practice
// chats feel like the synced ones.
const localReply = "Noted. This practice chat is local-only, so there is no real interviewer. " +
	"Keep going, or start a synced session to get evaluated answers."

// sendFailedNotice is appended to the transcript when the backend rejects a
// message. The user's message stays; the notice marks the failed turn.
const sendFailedNotice = "The interviewer is unreachable right now. Your answer was kept locally; try again in a moment."

// Gateway is the backend surface the store depends on.
type Gateway interface {
	ListSessions(ctx context.Context) ([]backend.Session, error)
	GetSession(ctx context.Context, sessionID string) ([]domain.Message, error)
	StartSession(ctx context.Context, targetRole string) (backend.Session, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Snapshot is the durable slice of the store's state.
type Snapshot interface {
	LoadConversations() ([]domain.Conversation, error)
	LoadMessages() (domain.MessageMap, error)
	SaveConversations(list []domain.Conversation) error
	SaveMessages(m domain.MessageMap) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Config carries the store's tunables. The zero value selects the defaults:
// one history fetch at a time (listing order) and the 700–1500ms local reply
// delay.
type Config struct {
	SyncConcurrency int
	ReplyDelay      func() time.Duration
}

// ChatStore holds the authoritative in-memory view of conversations and
// their transcripts, reconciling the backend listing, per-session fetches,
// and the local cache. It never enters an unrecoverable state: on any
// failure it falls back to whatever local data it has.
type ChatStore struct {
	gw     Gateway
	cache  Snapshot
	logger *slog.Logger

	syncConcurrency int
	replyDelay      func() time.Duration

	mu            sync.Mutex
	conversations []domain.Conversation
	messages      domain.MessageMap
	deleting      map[string]bool
}

// NewChatStore wires a store from its collaborators. Nothing is read from
// ambient state; the cache and gateway carry all configuration.
func NewChatStore(gw Gateway, cache Snapshot, logger *slog.Logger, cfg Config) (*ChatStore, error) {
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: cache must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = defaultSyncConcurrency
	}
	if cfg.ReplyDelay == nil {
		cfg.ReplyDelay = defaultReplyDelay
	}
	return &ChatStore{
		gw:              gw,
		cache:           cache,
		logger:          logger,
		syncConcurrency: cfg.SyncConcurrency,
		replyDelay:      cfg.ReplyDelay,
		messages:        domain.MessageMap{},
		deleting:        map[string]bool{},
	}, nil
}

// Load populates the store: cached snapshot first, then the backend listing
// overwrites the synced part of the conversation list, then each synced
// conversation's history is fetched. A listing failure keeps the cached
// state intact.
func (s *ChatStore) Load(ctx context.Context) error {
	convs, err := s.cache.LoadConversations()
	if err != nil {
		s.logger.Warn("cache load of conversations failed", "err", err)
		convs = []domain.Conversation{}
	}
	msgs, err := s.cache.LoadMessages()
	if err != nil {
		s.logger.Warn("cache load of messages failed", "err", err)
		msgs = domain.MessageMap{}
	}

	s.mu.Lock()
	s.conversations = convs
	s.messages = msgs
	s.mu.Unlock()

	sessions, err := s.gw.ListSessions(ctx)
	if err != nil {
		s.logger.Warn("session listing failed, keeping cached state", "err", err)
		return nil
	}

	s.mu.Lock()
	s.conversations = mergeListing(s.conversations, sessions)
	s.mu.Unlock()
	s.persist()

	s.syncHistories(ctx)
	return nil
}

// mergeListing rebuilds the conversation list from the backend listing.
// Synced conversations take the server's word for role and preview;
// local-only conversations survive, appended after the listing in their
// previous order.
func mergeListing(existing []domain.Conversation, sessions []backend.Session) []domain.Conversation {
	bysession := make(map[string]domain.Conversation, len(existing))
	for _, c := range existing {
		if c.Synced() {
			bysession[c.SessionID] = c
		}
	}

	merged := make([]domain.Conversation, 0, len(sessions))
	for _, sess := range sessions {
		conv := domain.Conversation{
			ID:        sess.ID,
			Role:      sess.TargetRole,
			SessionID: sess.ID,
			Last:      sess.Preview,
			Updated:   sess.UpdatedAt,
		}
		if prev, ok := bysession[sess.ID]; ok {
			conv.ID = prev.ID
			if conv.Role == "" {
				conv.Role = prev.Role
			}
			if conv.Last == "" {
				conv.Last = prev.Last
			}
			if conv.Updated.IsZero() {
				conv.Updated = prev.Updated
			}
		}
		merged = append(merged, conv)
	}
	for _, c := range existing {
		if !c.Synced() {
			merged = append(merged, c)
		}
	}
	return merged
}

// Conversations returns a copy of the current conversation list.
func (s *ChatStore) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Conversation{}, s.conversations...)
}

// Messages returns a copy of the transcript for a conversation. An unknown
// id is an empty transcript, not an error.
func (s *ChatStore) Messages(convID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message{}, s.messages[convID]...)
}

// Deleting reports whether a delete request is in flight for the id.
func (s *ChatStore) Deleting(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleting[convID]
}

// Start creates a new synced conversation for the target role. The
// transcript is seeded with the history the backend returns, or with a
// single synthetic welcome naming the role.
func (s *ChatStore) Start(ctx context.Context, targetRole string) (domain.Conversation, error) {
	targetRole = strings.TrimSpace(targetRole)
	if targetRole == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "empty_target_role", nil)
	}

	sess, err := s.gw.StartSession(ctx, targetRole)
	if err != nil {
		return domain.Conversation{}, s.classify("start_session", err)
	}

	conv := domain.Conversation{
		ID:        sess.ID,
		Role:      targetRole,
		SessionID: sess.ID,
		Updated:   now(),
	}
	if conv.ID == "" {
		conv.ID = newUUID()
	}

	msgs := sess.Messages
	if len(msgs) == 0 {
		msgs = []domain.Message{{
			ID:        newUUID(),
			From:      domain.FromBot,
			Text:      fmt.Sprintf("Interview session started for %s. Answer each question as you would in a real interview.", targetRole),
			Timestamp: now(),
		}}
	}
	conv.Last = msgs[len(msgs)-1].Text

	s.mu.Lock()
	s.conversations = append([]domain.Conversation{conv}, s.conversations...)
	s.messages[conv.ID] = msgs
	s.mu.Unlock()
	s.persist()

	return conv, nil
}

// AddLocal creates a local-only practice conversation. It never touches the
// backend.
func (s *ChatStore) AddLocal(role string) (domain.Conversation, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "empty_target_role", nil)
	}
	conv := domain.Conversation{
		ID:      newUUID(),
		Role:    role,
		Updated: now(),
	}
	s.mu.Lock()
	s.conversations = append([]domain.Conversation{conv}, s.conversations...)
	s.messages[conv.ID] = []domain.Message{}
	s.mu.Unlock()
	s.persist()
	return conv, nil
}

// Send appends the user's message immediately, then reconciles with the
// backend. For synced conversations the backend reply is appended on
// success and a synthetic failure notice on transport errors; a missing
// credential is returned to the caller instead. Local-only conversations
// get the canned reply after the randomized delay without any network call.
func (s *ChatStore) Send(ctx context.Context, convID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return newError(ErrorInvalidInput, "empty_message", nil)
	}

	s.mu.Lock()
	idx := s.indexOf(convID)
	if idx < 0 {
		s.mu.Unlock()
		return newError(ErrorNotFound, "unknown_conversation", nil)
	}
	sessionID := s.conversations[idx].SessionID
	s.appendLocked(convID, domain.Message{
		ID:        newUUID(),
		From:      domain.FromUser,
		Text:      text,
		Timestamp: now(),
	})
	s.mu.Unlock()
	s.persist()

	if sessionID == "" {
		return s.localReplyAfterDelay(ctx, convID)
	}

	reply, err := s.gw.SendMessage(ctx, sessionID, text)
	if err != nil {
		if errors.Is(err, backend.ErrNoCredential) {
			return s.classify("send_message", err)
		}
		s.logger.Warn("send message failed", "conversation", convID, "err", err)
		s.appendBot(convID, sendFailedNotice)
		return nil
	}
	s.appendBot(convID, reply)
	return nil
}

// localReplyAfterDelay simulates interviewer latency for local-only chats.
func (s *ChatStore) localReplyAfterDelay(ctx context.Context, convID string) error {
	t := time.NewTimer(s.replyDelay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
	}
	s.appendBot(convID, localReply)
	return nil
}

// Delete removes a conversation. Synced conversations are deleted
// server-side first; on failure nothing local changes. The per-conversation
// deleting flag rejects duplicate concurrent deletes.
func (s *ChatStore) Delete(ctx context.Context, convID string) error {
	s.mu.Lock()
	if s.deleting[convID] {
		s.mu.Unlock()
		return newError(ErrorInvalidInput, "delete_in_progress", nil)
	}
	idx := s.indexOf(convID)
	if idx < 0 {
		s.mu.Unlock()
		return newError(ErrorNotFound, "unknown_conversation", nil)
	}
	sessionID := s.conversations[idx].SessionID
	s.deleting[convID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.deleting, convID)
		s.mu.Unlock()
	}()

	if sessionID != "" {
		if err := s.gw.DeleteSession(ctx, sessionID); err != nil {
			return s.classify("delete_session", err)
		}
	}

	s.mu.Lock()
	if idx := s.indexOf(convID); idx >= 0 {
		s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	}
	delete(s.messages, convID)
	s.mu.Unlock()
	s.persist()
	return nil
}

// appendBot records a bot message and refreshes the conversation preview.
func (s *ChatStore) appendBot(convID, text string) {
	s.mu.Lock()
	s.appendLocked(convID, domain.Message{
		ID:        newUUID(),
		From:      domain.FromBot,
		Text:      text,
		Timestamp: now(),
	})
	s.mu.Unlock()
	s.persist()
}

// appendLocked adds a message and updates the owning conversation's preview.
// Callers hold s.mu.
func (s *ChatStore) appendLocked(convID string, msg domain.Message) {
	s.messages[convID] = append(s.messages[convID], msg)
	if idx := s.indexOf(convID); idx >= 0 {
		s.conversations[idx].Last = msg.Text
		s.conversations[idx].Updated = msg.Timestamp
	}
}

// indexOf locates a conversation by id. Callers hold s.mu.
func (s *ChatStore) indexOf(convID string) int {
	for i, c := range s.conversations {
		if c.ID == convID {
			return i
		}
	}
	return -1
}

// persist rewrites both cache slots. Persistence failures are logged and
// swallowed: the in-memory state stays authoritative until the process ends.
func (s *ChatStore) persist() {
	s.mu.Lock()
	convs := append([]domain.Conversation{}, s.conversations...)
	msgs := make(domain.MessageMap, len(s.messages))
	for id, list := range s.messages {
		msgs[id] = append([]domain.Message{}, list...)
	}
	s.mu.Unlock()

	if err := s.cache.SaveConversations(convs); err != nil {
		s.logger.Warn("persist conversations failed", "err", err)
	}
	if err := s.cache.SaveMessages(msgs); err != nil {
		s.logger.Warn("persist messages failed", "err", err)
	}
}

// classify maps gateway failures onto the store's error taxonomy.
func (s *ChatStore) classify(reason string, err error) *Error {
	if errors.Is(err, backend.ErrNoCredential) {
		return newError(ErrorMissingCredential, reason, err)
	}
	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() == 404 {
		return newError(ErrorNotFound, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}

func defaultReplyDelay() time.Duration {
	spread := int64(maxLocalReplyDelay - minLocalReplyDelay)
	return minLocalReplyDelay + time.Duration(rand.Int63n(spread+1))
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}
