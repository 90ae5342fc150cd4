package version

import (
	"log"
	"sync"
	"time"

	"flowlab/graph"
)

// DefaultAutosaveInterval is how often a dirty session is flushed to the
// working copy.
const DefaultAutosaveInterval = 30 * time.Second

// State tracks whether a session's edits have reached disk.
type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
)

// Autosaver debounces persistence for one live editing session. Any
// mutation on the bound store marks it dirty; a background ticker flushes
// dirty sessions by writing the working copy and cutting an autosave
// version. Autosave failures are logged and retried on the next tick --
// they never surface to the editing path.
type Autosaver struct {
	svc        *Service
	st         *graph.Store
	workflowID string
	interval   time.Duration

	mu      sync.Mutex
	state   State
	pending bool // edits arrived while a save was in flight

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAutosaver binds an autosaver to a session's store. It registers itself
// as the store's mutate hook; the caller still has to Start it.
func NewAutosaver(svc *Service, st *graph.Store, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	a := &Autosaver{
		svc:        svc,
		st:         st,
		workflowID: st.WorkflowID(),
		interval:   interval,
		state:      StateClean,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	st.SetMutateHook(a.MarkDirty)
	return a
}

// Start launches the debounce loop.
func (a *Autosaver) Start() {
	go a.run()
}

// Stop tears the loop down. A final flush is attempted so closing a session
// does not drop the last few edits.
func (a *Autosaver) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
		a.mu.Lock()
		dirty := a.state != StateClean
		a.mu.Unlock()
		if dirty {
			if err := a.flush(a.save); err != nil {
				log.Printf("autosave: final flush for %s: %v", a.workflowID, err)
			}
		}
	})
}

// State reports the current save state.
func (a *Autosaver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// MarkDirty records that the session has unsaved edits.
func (a *Autosaver) MarkDirty() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateSaving {
		a.pending = true
		return
	}
	a.state = StateDirty
}

// SaveNow flushes immediately regardless of state and returns the error to
// the caller. This backs explicit save requests, where a failed write must
// be visible.
func (a *Autosaver) SaveNow() error {
	return a.flush(a.save)
}

// Sync persists the working copy without cutting a version. The explicit
// commit path uses it to pick up in-flight edits; the commit itself cuts
// the one version, so a manual save never produces two records.
func (a *Autosaver) Sync() error {
	return a.flush(a.sync)
}

func (a *Autosaver) run() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			dirty := a.state == StateDirty
			a.mu.Unlock()
			if !dirty {
				continue
			}
			if err := a.flush(a.save); err != nil {
				log.Printf("autosave: flush for %s: %v", a.workflowID, err)
			}
		}
	}
}

// flush runs one write under the Saving state. The store lock is not held
// during I/O; edits that land mid-save leave the state dirty so the next
// tick picks them up.
func (a *Autosaver) flush(write func() error) error {
	a.mu.Lock()
	a.state = StateSaving
	a.pending = false
	a.mu.Unlock()

	err := write()

	a.mu.Lock()
	switch {
	case err != nil:
		a.state = StateDirty
	case a.pending:
		a.state = StateDirty
		a.pending = false
	default:
		a.state = StateClean
	}
	a.mu.Unlock()
	return err
}

// save writes the working copy and cuts an autosave version from the
// current document.
func (a *Autosaver) save() error {
	if err := a.sync(); err != nil {
		return err
	}
	_, err := a.svc.Commit(a.workflowID, "autosave")
	return err
}

func (a *Autosaver) sync() error {
	return a.svc.SaveWorkingCopy(a.workflowID, a.st.GraphSnapshot())
}
