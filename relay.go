package voicelink

import (
	"context"
)

// Instruction is an externally authored directive delivered to the active
// subject. Kind "message" instructions become synthetic user turns; other
// kinds are ignored by this relay.
type Instruction struct {
	ID      string
	Kind    string
	Payload string
}

// InstructionKindMessage is the only kind the relay injects.
const InstructionKindMessage = "message"

// InstructionSource is the external instruction feed. Subscribe delivers
// new, unexecuted instructions for a subject until ctx is cancelled, at
// which point the channel closes. MarkExecuted records successful injection;
// instructions never marked are redelivered on a later subscription
// (at-least-once).
type InstructionSource interface {
	Subscribe(ctx context.Context, subjectID string) (<-chan Instruction, error)
	MarkExecuted(ctx context.Context, id string) error
}

// textInjector is the slice of the session the relay needs: the same commit
// path captured audio uses, text variant.
type textInjector interface {
	SendText(ctx context.Context, text string) error
}

// instructionRelay pumps the feed into the session for the lifetime of the
// subscription context.
type instructionRelay struct {
	source   InstructionSource
	injector textInjector
	logFn    func(level LogLevel, event string, fields map[string]any)
}

func newInstructionRelay(source InstructionSource, injector textInjector, logFn func(LogLevel, string, map[string]any)) *instructionRelay {
	return &instructionRelay{source: source, injector: injector, logFn: logFn}
}

// run subscribes and relays until ctx is cancelled. It blocks; callers start
// it on its own goroutine.
func (r *instructionRelay) run(ctx context.Context, subjectID string) error {
	ch, err := r.source.Subscribe(ctx, subjectID)
	if err != nil {
		return err
	}

	for instr := range ch {
		if instr.Kind != InstructionKindMessage {
			r.log(LogLevelDebug, "instruction_skipped", map[string]any{"id": instr.ID, "kind": instr.Kind})
			continue
		}

		// Payload is injected verbatim; the relay never rewrites it.
		if err := r.injector.SendText(ctx, instr.Payload); err != nil {
			// Left unexecuted: the source redelivers it later.
			r.log(LogLevelWarn, "instruction_injection_failed", map[string]any{"id": instr.ID, "err": err})
			continue
		}

		if err := r.source.MarkExecuted(ctx, instr.ID); err != nil {
			r.log(LogLevelWarn, "instruction_mark_failed", map[string]any{"id": instr.ID, "err": err})
		}
	}
	return nil
}

func (r *instructionRelay) log(level LogLevel, event string, fields map[string]any) {
	if r.logFn != nil {
		r.logFn(level, event, fields)
	}
}
