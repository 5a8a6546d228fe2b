package stages

import "sync"

// Status of a single pipeline stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Pipeline stage names in execution order.
const (
	Preprocessing = "preprocessing"
	Transcription = "transcription"
	Diarization   = "diarization"
	NLP           = "nlp"
)

// Names returns the pipeline stages in execution order.
func Names() []string {
	return []string{Preprocessing, Transcription, Diarization, NLP}
}

// State captures the externally visible progress of a stage.
type State struct {
	Status   Status            `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Progress int               `json:"progress"`
	SubTasks map[string]string `json:"sub_tasks,omitempty"`
}

// Tracker records stage progress for a single job. All methods are safe for
// concurrent use; the parallel pipeline phase updates two stages at once.
type Tracker struct {
	mu     sync.Mutex
	states map[string]State
	order  []string
}

// NewTracker returns a tracker with the given stages initialized to pending.
// When no names are given the standard pipeline stages are used.
func NewTracker(names ...string) *Tracker {
	if len(names) == 0 {
		names = Names()
	}
	states := make(map[string]State, len(names))
	order := make([]string, len(names))
	for i, name := range names {
		states[name] = State{Status: StatusPending}
		order[i] = name
	}
	return &Tracker{states: states, order: order}
}

// Update sets the status, detail, and progress of a stage. Unknown stage
// names are added rather than rejected so ad hoc sub-pipelines can report.
func (t *Tracker) Update(name string, status Status, detail string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.states[name]
	if _, known := t.states[name]; !known {
		t.order = append(t.order, name)
	}
	state.Status = status
	state.Detail = detail
	state.Progress = progress
	t.states[name] = state
}

// SetProgress updates only the progress percentage of a stage, leaving the
// status and detail untouched.
func (t *Tracker) SetProgress(name string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[name]
	if !ok {
		return
	}
	state.Progress = progress
	t.states[name] = state
}

// SetSubTask records the status of a named sub-task under a stage, for
// example the fast-API and realtime fallback attempts of diarization.
func (t *Tracker) SetSubTask(stage, task, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[stage]
	if !ok {
		state = State{Status: StatusPending}
		t.order = append(t.order, stage)
	}
	if state.SubTasks == nil {
		state.SubTasks = make(map[string]string)
	}
	state.SubTasks[task] = status
	t.states[stage] = state
}

// MarkSkipped marks a stage done with a "Skipped" detail so consumers can
// tell a skipped stage from one that ran.
func (t *Tracker) MarkSkipped(name string) {
	t.Update(name, StatusDone, "Skipped", 100)
}

// Snapshot returns a deep copy of the current stage states.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.states))
	for name, state := range t.states {
		cp := state
		if state.SubTasks != nil {
			cp.SubTasks = make(map[string]string, len(state.SubTasks))
			for k, v := range state.SubTasks {
				cp.SubTasks[k] = v
			}
		}
		out[name] = cp
	}
	return out
}

// Order returns the stage names in the order they were initialized.
func (t *Tracker) Order() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
