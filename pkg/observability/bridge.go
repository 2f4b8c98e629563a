package observability

import (
	"context"
	"errors"

	"github.com/quillworks/quill/pkg/events"
)

// BridgeEvents wires the global metrics recorder to an event bus, so hosts
// that only construct the bus still get OTel measurements. Returns the
// subscription for later removal.
func BridgeEvents(bus *events.Bus) *events.Subscription {
	return bus.Subscribe(events.KindAll, func(evt events.Event) {
		m := GetGlobalMetrics()
		if m == nil {
			return
		}
		ctx := context.Background()

		switch evt.Kind {
		case events.RunCompleted:
			p, ok := evt.Payload.(events.RunCompletedPayload)
			if !ok {
				return
			}
			var err error
			if p.Error != "" {
				err = errors.New(p.Error)
			}
			m.RecordRun(ctx, p.Duration, p.TotalTurns, err)

		case events.LLMCallCompleted:
			p, ok := evt.Payload.(events.LLMCallCompletedPayload)
			if !ok {
				return
			}
			var err error
			if p.Error != "" {
				err = errors.New(p.Error)
			}
			m.RecordLLMCall(ctx, p.Model, p.Duration, p.InputTokens, p.OutputTokens, err)

		case events.ToolCallCompleted:
			p, ok := evt.Payload.(events.ToolCallCompletedPayload)
			if !ok {
				return
			}
			m.RecordDedupe(ctx, p.CacheHit)
			var err error
			if !p.Success {
				err = errors.New(p.Error)
			}
			m.RecordToolExecution(ctx, p.ToolName, p.Elapsed, err)

		case events.LoopDetected:
			p, ok := evt.Payload.(events.LoopDetectedPayload)
			if !ok {
				return
			}
			m.RecordLoopDetected(ctx, p.Kind)
		}
	})
}
