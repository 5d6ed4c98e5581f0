// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"sync"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// subscriberBuffer is the per-subscriber channel depth. A slow consumer
// drops updates rather than stalling the pipeline.
const subscriberBuffer = 16

// Hub fans pipeline progress updates out to per-run subscribers.
// Publishing never blocks.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan types.ProgressUpdate]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan types.ProgressUpdate]struct{})}
}

// Publish delivers an update to every subscriber of its run. Full
// subscriber channels are skipped.
func (h *Hub) Publish(u types.ProgressUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[u.RunID] {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers interest in one run's updates. The returned cancel
// function must be called when the consumer is done; it closes the
// channel.
func (h *Hub) Subscribe(runID string) (<-chan types.ProgressUpdate, func()) {
	ch := make(chan types.ProgressUpdate, subscriberBuffer)

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan types.ProgressUpdate]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[runID]; ok {
			if _, subscribed := set[ch]; subscribed {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
	}
	return ch, cancel
}
