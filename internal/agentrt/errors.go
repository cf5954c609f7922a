package agentrt

import "errors"

// ErrMaxTurnsExceeded is returned when turns_used would reach max_turns
// before the loop could issue another LLM request (spec §4.1 step 1, and
// the invariant in §8: MaxTurnsExceeded is raised before the
// (max_turns+1)th request).
var ErrMaxTurnsExceeded = errors.New("agentrt: max turns exceeded")
