package construct

import (
	"log/slog"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/workflow"
)

// frame is one entry of the builder's call stack. It records which task
// body is currently being evaluated so call legality can be checked: a
// subworkflow body may compose further calls, a plain task body may not.
type frame struct {
	task *TaskFn
	// execBody is set when an execution backend has announced it is
	// running a plain task body via EnterTaskBody.
	execBody string
}

// Builder owns one construction pass: the workflow under construction, the
// sequencer numbering its steps, the configuration and the environment
// capture lists resolve against. All construction state lives here; there
// are no process-wide registries.
type Builder struct {
	cfg Config
	env *Env
	log *slog.Logger
	seq *Sequencer

	wf     *workflow.Workflow
	frames []*frame
	done   bool
}

// NewBuilder starts a construction pass.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		cfg: defaultConfig(),
		env: NewEnv(),
		seq: &Sequencer{},
		wf:  workflow.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.wf.SetFieldSeparator(b.cfg.FieldSeparator)
	return b
}

// Workflow exposes the graph under construction. Most callers never need
// it before Finish; it exists for renderer and front-end plumbing.
func (b *Builder) Workflow() *workflow.Workflow { return b.wf }

// Env returns the capture environment.
func (b *Builder) Env() *Env { return b.env }

// Logger returns the builder's logger.
func (b *Builder) Logger() *slog.Logger { return b.log }

// ensureOpen rejects use of a builder whose pass already finished.
func (b *Builder) ensureOpen() error {
	if b.done {
		return &Error{Code: CodePassFinished}
	}
	return nil
}

// currentFrame returns the innermost frame, or nil at module scope.
func (b *Builder) currentFrame() *frame {
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[len(b.frames)-1]
}

// checkCallLegal verifies that calling t is allowed from the current
// frame. Calls are legal at module scope and inside subworkflow bodies;
// inside a plain task body they are not, because that body only ever runs
// in the execution backend, never during construction.
func (b *Builder) checkCallLegal(t *TaskFn) error {
	top := b.currentFrame()
	if top == nil {
		return nil
	}
	if top.execBody != "" {
		return &Error{Code: CodeTaskInsideTask, Task: t.name, Caller: top.execBody}
	}
	if top.task != nil && top.task.kind == plainTask {
		return &Error{Code: CodeTaskInsideTask, Task: t.name, Caller: top.task.name}
	}
	for _, f := range b.frames {
		if f.task == t {
			return &Error{
				Code: CodeRecursiveCall, Task: t.name, DeclSite: t.declSite,
			}
		}
	}
	return nil
}

// EnterTaskBody marks that an execution backend is about to run the body
// of the named plain task on this goroutine. Any construction call made
// until the returned exit function runs is rejected as a task-inside-task
// error. Construction itself never calls this.
func (b *Builder) EnterTaskBody(name string) (exit func()) {
	f := &frame{execBody: name}
	b.frames = append(b.frames, f)
	return func() {
		for i := len(b.frames) - 1; i >= 0; i-- {
			if b.frames[i] == f {
				b.frames = append(b.frames[:i], b.frames[i+1:]...)
				return
			}
		}
	}
}

// Finish closes the pass: it records the result, optionally simplifies
// step ids, freezes the workflow and returns it. The result must contain
// at least one reference into this builder's workflow; constants alone
// cannot name a graph.
func (b *Builder) Finish(result any) (*workflow.Workflow, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	node, err := core.Val(result)
	if err != nil {
		return nil, &Error{Code: CodeInvalidArgument, Arg: "result", Detail: err.Error()}
	}
	if len(node.References()) == 0 {
		return nil, &Error{Code: CodeNoReferences}
	}
	if err := b.wf.SetResult(node); err != nil {
		return nil, err
	}
	if b.cfg.SimplifyIDs {
		b.wf.SimplifyIDs(nil)
	}
	b.wf.Freeze()
	b.done = true
	b.log.Debug("construction pass finished",
		"steps", len(b.wf.Steps()),
		"parameters", len(b.wf.Parameters()),
	)
	return b.wf, nil
}

// Construct is the one-call entry point: it closes the pass on b with the
// given result node.
func Construct(b *Builder, result any) (*workflow.Workflow, error) {
	return b.Finish(result)
}
