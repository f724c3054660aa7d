package reloc

// State names one stage of a frame's strict state machine: IDLE -> PREDICT
// -> GENERATE -> (SCORE -> REFINE -> HALVE)* -> EMIT. Cancellation is only
// honored at a transition into the next State, never mid-dispatch.
type State string

const (
	StateIdle     State = "IDLE"
	StatePredict  State = "PREDICT"
	StateGenerate State = "GENERATE"
	StateScore    State = "SCORE"
	StateHalve    State = "HALVE"
	StateRefine   State = "REFINE"
	StateEmit     State = "EMIT"
)
