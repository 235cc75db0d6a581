package usecase

import (
	"context"
	"sync"

	"careerdesk/internal/domain"
)

// syncHistories fetches the full history of every synced conversation and
// replaces the local transcript for that id. Fetches run through a bounded
// task set keyed by conversation; the default bound of one preserves listing
// order. A failed fetch falls back to a synthetic transcript and never
// aborts the rest. Cancelling ctx stops issuing fetches and discards the
// results of any still in flight.
func (s *ChatStore) syncHistories(ctx context.Context) {
	s.mu.Lock()
	synced := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.Synced() {
			synced = append(synced, c)
		}
	}
	s.mu.Unlock()

	sem := make(chan struct{}, s.syncConcurrency)
	var wg sync.WaitGroup
	for _, conv := range synced {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(c domain.Conversation) {
			defer wg.Done()
			defer func() { <-sem }()

			msgs, err := s.gw.GetSession(ctx, c.SessionID)
			if err != nil {
				s.logger.Warn("history fetch failed", "conversation", c.ID, "err", err)
				msgs = fallbackTranscript(c)
			}
			if ctx.Err() != nil {
				// Owning view torn down mid-sync: drop the result.
				return
			}
			s.mu.Lock()
			s.messages[c.ID] = msgs
			s.mu.Unlock()
		}(conv)
	}
	wg.Wait()

	if ctx.Err() == nil {
		s.persist()
	}
}

// fallbackTranscript keeps the last known preview as a single synthetic
// message when the real history is unreachable.
func fallbackTranscript(c domain.Conversation) []domain.Message {
	if c.Last == "" {
		return []domain.Message{}
	}
	return []domain.Message{{
		ID:        newUUID(),
		From:      domain.FromBot,
		Text:      c.Last,
		Timestamp: c.Updated,
	}}
}
