package service

import (
	"context"
	"time"

	"github.com/raphaelgruber/snapknow/internal/metrics"
	"github.com/raphaelgruber/snapknow/internal/models"
)

// Stream event types, in emission order: one context event, zero or more
// token events, then exactly one done or error event.
const (
	EventContext = "context"
	EventToken   = "token"
	EventDone    = "done"
	EventError   = "error"
)

// SourceRef identifies one retrieved record in a context event. Image is the
// source locator the record was ingested from; URL is the origin for remote
// images. Together with the category path they let a consumer cite the
// original source.
type SourceRef struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Topic       string  `json:"topic"`
	Image       string  `json:"image"`
	URL         string  `json:"url,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// StreamEvent is one unit of a streamed query response.
type StreamEvent struct {
	Type    string      `json:"type"`
	Sources []SourceRef `json:"sources,omitempty"`
	Token   string      `json:"token,omitempty"`
	Answer  string      `json:"answer,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Stream answers a query incrementally: the retrieved sources arrive first,
// then answer tokens as the model produces them, then a done event carrying
// the full answer. The channel is closed after the terminal event. Cancel
// ctx to abort generation.
func (r *Retrieval) Stream(ctx context.Context, query string, opts QueryOptions) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)

	go func() {
		defer close(events)

		emit := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		hits, err := r.Retrieve(ctx, query, opts)
		if err != nil {
			emit(StreamEvent{Type: EventError, Error: err.Error()})
			return
		}

		if !emit(StreamEvent{Type: EventContext, Sources: SourceRefs(hits)}) {
			return
		}

		if len(hits) == 0 {
			msg := "No relevant knowledge found for this query."
			if !emit(StreamEvent{Type: EventToken, Token: msg}) {
				return
			}
			emit(StreamEvent{Type: EventDone, Answer: msg})
			return
		}

		var answer []byte
		start := time.Now()
		err = r.model.StreamAnswer(ctx, query, knowledgeContext(hits), func(chunk string) error {
			answer = append(answer, chunk...)
			if !emit(StreamEvent{Type: EventToken, Token: chunk}) {
				return context.Canceled
			}
			return nil
		})
		r.metrics.RecordTiming(metrics.OpLLMStream, time.Since(start))
		if err != nil {
			emit(StreamEvent{Type: EventError, Error: err.Error()})
			return
		}

		emit(StreamEvent{Type: EventDone, Answer: string(answer)})
	}()

	return events
}

// SourceRefs converts search hits into citation references, preserving rank
// order.
func SourceRefs(hits []models.SearchHit) []SourceRef {
	refs := make([]SourceRef, len(hits))
	for i, hit := range hits {
		refs[i] = SourceRef{
			ID:          models.MustRecordIDString(hit.ID),
			Title:       hit.Title,
			Category:    hit.Category,
			Subcategory: hit.Subcategory,
			Topic:       hit.Topic,
			Image:       hit.Image,
			URL:         hit.URL,
			Similarity:  hit.Similarity,
		}
	}
	return refs
}
