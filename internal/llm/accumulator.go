package llm

import (
	"encoding/json"
	"sort"
)

// toolCallBuilder accumulates one tool call's id/name/argument fragments
// across a stream, keyed by the provider's block/tool index, per spec
// §4.2's "per-index tool-call builder holding {id, name,
// args_fragment_buffer}".
type toolCallBuilder struct {
	id   string
	name string
	args []byte
}

// streamAccumulator is the decoder-agnostic finalisation target shared by
// the Anthropic and OpenAI stream codecs: a running text buffer plus a set
// of per-index tool-call builders.
type streamAccumulator struct {
	text     []byte
	builders map[int]*toolCallBuilder
	order    []int
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{builders: make(map[int]*toolCallBuilder)}
}

func (a *streamAccumulator) appendText(s string) {
	a.text = append(a.text, s...)
}

func (a *streamAccumulator) builder(index int) *toolCallBuilder {
	b, ok := a.builders[index]
	if !ok {
		b = &toolCallBuilder{}
		a.builders[index] = b
		a.order = append(a.order, index)
	}
	return b
}

func (a *streamAccumulator) setToolMeta(index int, id, name string) {
	b := a.builder(index)
	if id != "" {
		b.id = id
	}
	if name != "" {
		b.name = name
	}
}

func (a *streamAccumulator) appendArgs(index int, fragment string) {
	b := a.builder(index)
	b.args = append(b.args, fragment...)
}

// finalize converts accumulated state into a Response. Per spec, the
// result is Text when no tool calls were finalised, else ToolCalls; each
// builder's argument buffer is JSON-parsed (validated, not transformed) to
// surface malformed output as ParseFailedError as early as possible.
func (a *streamAccumulator) finalize() (*Response, error) {
	if len(a.builders) == 0 {
		return &Response{Text: string(a.text)}, nil
	}

	sort.Ints(a.order)
	calls := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		b := a.builders[idx]
		args := b.args
		if len(args) == 0 {
			args = []byte("{}")
		}
		if !json.Valid(args) {
			return nil, &ParseFailedError{Reason: "tool call " + b.name + " has malformed argument JSON"}
		}
		calls = append(calls, ToolCall{ID: b.id, Name: b.name, Arguments: json.RawMessage(args)})
	}
	return &Response{ToolCalls: calls}, nil
}
