package export

import (
	log "github.com/msolo/go-bis/glug"
)

// state is the per-brain export state machine of spec.md §4.7:
//
//	START -> GROUPED -> [local-clean?  yes -> COPY_LOCAL -> ADD -> COMMIT -> DONE]
//	                    [            no  -> CLONE -> COPY -> ADD -> COMMIT -> PUSH -> CLEANUP -> DONE]
//	Any step may transition to ERROR; CLEANUP runs on ERROR if CLONE succeeded.
type state string

const (
	stateStart     state = "START"
	stateGrouped   state = "GROUPED"
	stateCopyLocal state = "COPY_LOCAL"
	stateClone     state = "CLONE"
	stateCopy      state = "COPY"
	stateAdd       state = "ADD"
	stateCommit    state = "COMMIT"
	statePush      state = "PUSH"
	stateCleanup   state = "CLEANUP"
	stateDone      state = "DONE"
	stateError     state = "ERROR"
)

// stateTracker drives a brain group through the states above, logging every
// transition so a failure's final state shows up in Result.State.
type stateTracker struct {
	label   string
	current state
}

func newStateTracker(label string) *stateTracker {
	return &stateTracker{label: label, current: stateStart}
}

func (t *stateTracker) to(s state) {
	log.Tracef("export %s: %s -> %s", t.label, t.current, s).Finish()
	t.current = s
}
