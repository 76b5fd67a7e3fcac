package executor

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTerminated State = "terminated"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTerminated
}

// JobSpec describes one external command.
type JobSpec struct {
	// ID identifies the job within its executor; generated when empty.
	ID string
	// Name labels the job in logs and batch queues; defaults to the command base name.
	Name    string
	Command string
	Args    []string
	// Workdir defaults to <executor workdir>/<id>.
	Workdir string
	// Env is overlaid on the parent environment unless IsolateEnv is set.
	Env        map[string]string
	IsolateEnv bool
	// CPUs and Memory (bytes) are advisory resource hints.
	CPUs   int
	Memory uint64
	// Wait makes Submit block until the job is terminal.
	Wait bool
	// OnSuccess runs after the job exits zero.
	OnSuccess func(*Job)
	// OnError runs after the job fails. A job with OnError set does not
	// report its failure through Wait.
	OnError func(*Job, error)
}

// CommandLine renders the command and arguments for logging.
func (s JobSpec) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, quoteArg(s.Command))
	for _, arg := range s.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

// Environ returns the job environment as KEY=VALUE pairs, overlay keys sorted.
func (s JobSpec) Environ() []string {
	var env []string
	if !s.IsolateEnv {
		for _, kv := range os.Environ() {
			key, _, _ := strings.Cut(kv, "=")
			if _, overridden := s.Env[key]; !overridden {
				env = append(env, kv)
			}
		}
	}
	for _, key := range slices.Sorted(maps.Keys(s.Env)) {
		env = append(env, key+"="+s.Env[key])
	}
	if env == nil {
		env = []string{}
	}
	return env
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$") {
		return fmt.Sprintf("%q", arg)
	}
	return arg
}

// LogPaths returns the stdout and stderr capture files for a job.
func LogPaths(logDir, jobID string) (string, string) {
	dir := filepath.Join(logDir, "jobs")
	return filepath.Join(dir, jobID+".out"), filepath.Join(dir, jobID+".err")
}

// Job is one submitted command and its observed state.
type Job struct {
	ID   string
	Name string
	Spec JobSpec

	backend string

	mu         sync.Mutex
	state      State
	err        error
	absorbed   bool
	handle     Handle
	terminated bool
	started    time.Time
	finished   time.Time
	done       chan struct{}
}

func newJob(spec JobSpec, backend string) *Job {
	return &Job{
		ID:      spec.ID,
		Name:    spec.Name,
		Spec:    spec,
		backend: backend,
		state:   StatePending,
		done:    make(chan struct{}),
	}
}

// Backend returns the name of the backend running the job.
func (j *Job) Backend() string { return j.backend }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the captured failure of a failed or terminated job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job is terminal and its callbacks have run.
func (j *Job) Done() <-chan struct{} { return j.done }

// Duration reports how long the job ran; zero until it finished.
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started.IsZero() || j.finished.IsZero() {
		return 0
	}
	return j.finished.Sub(j.started)
}

// pendingErr returns the failure Wait must report, if any.
func (j *Job) pendingErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateFailed || j.absorbed {
		return nil
	}
	return j.err
}
