package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/workplan/core"
)

// Workflow is the graph produced by one construction pass: the ordered
// steps, the tasks they invoke, the parameters captured from outside, and
// the chosen result. A workflow may be wrapped as a NestedStep inside a
// parent workflow, forming a tree of graphs.
type Workflow struct {
	steps  []*Step
	byID   map[string]*Step
	tasks  map[string]*Task
	params map[string]*Parameter
	result core.Node

	remapping map[string]string
	fieldSep  string
	frozen    bool
}

// New creates an empty workflow.
func New() *Workflow {
	return &Workflow{
		byID:     make(map[string]*Step),
		tasks:    make(map[string]*Task),
		params:   make(map[string]*Parameter),
		fieldSep: "/",
	}
}

// SetFieldSeparator overrides the separator used in reference names
// (default "/").
func (w *Workflow) SetFieldSeparator(sep string) {
	if sep != "" {
		w.fieldSep = sep
	}
}

// AddStep appends a step invoking task with the given named arguments.
// Identical task and argument content collapses onto the existing step:
// the returned reference then points at the original and nextSeq is never
// called, so no sequence number is consumed.
func (w *Workflow) AddStep(task *Task, args map[string]any, nextSeq func() int) (*StepReference, error) {
	return w.addStep(TaskStep, task, args, nextSeq, nil)
}

// AddNestedStep appends a step wrapping a child workflow.
func (w *Workflow) AddNestedStep(task *Task, args map[string]any, child *Workflow, nextSeq func() int) (*StepReference, error) {
	return w.addStep(NestedStep, task, args, nextSeq, child)
}

func (w *Workflow) addStep(kind StepKind, task *Task, args map[string]any, nextSeq func() int, child *Workflow) (*StepReference, error) {
	if w.frozen {
		return nil, fmt.Errorf("workflow is frozen; cannot add step for task %q", task.Name)
	}
	step, err := newStep(w, kind, task, args, child)
	if err != nil {
		return nil, err
	}
	id := step.ID()
	if existing, ok := w.byID[id]; ok {
		if !existing.equal(step) {
			// The id is a content hash, so two different steps sharing
			// one id means the hash or encoding is broken.
			panic(fmt.Sprintf("two steps have same ID but do not match: %s", id))
		}
		return existing.Ref(), nil
	}
	step.seq = nextSeq()
	w.steps = append(w.steps, step)
	w.byID[id] = step
	return step.Ref(), nil
}

// Steps returns the steps in creation order.
func (w *Workflow) Steps() []*Step {
	out := make([]*Step, len(w.steps))
	copy(out, w.steps)
	return out
}

// OrderedSteps returns the steps sorted by sequence number. Structural
// order is not guaranteed stable across passes; sequence numbers are.
func (w *Workflow) OrderedSteps() []*Step {
	out := w.Steps()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// Step finds a step by its (possibly simplified) name or raw id.
func (w *Workflow) Step(name string) (*Step, bool) {
	for _, s := range w.steps {
		if s.Name() == name || s.ID() == name {
			return s, true
		}
	}
	return nil, false
}

// Task finds a registered task by name.
func (w *Workflow) Task(name string) (*Task, bool) {
	t, ok := w.tasks[name]
	return t, ok
}

// TaskNames returns registered task names, sorted.
func (w *Workflow) TaskNames() []string {
	names := make([]string, 0, len(w.tasks))
	for name := range w.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parameters returns the declared parameters, sorted by name.
func (w *Workflow) Parameters() []*Parameter {
	out := make([]*Parameter, 0, len(w.params))
	for _, p := range w.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// FindParameters discovers the parameters actually referenced by step
// arguments and the result, sorted by name. Declared-but-unused
// parameters are not included.
func (w *Workflow) FindParameters() []*Parameter {
	seen := make(map[string]*Parameter)
	collect := func(node core.Node) {
		if node == nil {
			return
		}
		for _, ref := range node.References() {
			if pr, ok := ref.Root().(*ParameterReference); ok {
				seen[pr.param.name] = pr.param
			}
		}
	}
	for _, step := range w.steps {
		for _, name := range step.ArgNames() {
			node, _ := step.Arg(name)
			collect(node)
		}
	}
	collect(w.result)

	out := make([]*Parameter, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// SetResult chooses the node whose value the workflow exists to produce.
// Every reference in it must point into this workflow.
func (w *Workflow) SetResult(result core.Node) error {
	if result == nil {
		return fmt.Errorf("workflow result must not be nil")
	}
	refs := result.References()
	if len(refs) == 0 {
		return fmt.Errorf("output must be from a step or parameter in this workflow")
	}
	for _, ref := range refs {
		if WorkflowOf(ref) != w {
			return fmt.Errorf("output must be from a step in this workflow: %s", ref.Name())
		}
	}
	w.result = result
	return nil
}

// Result returns the chosen result node, or nil.
func (w *Workflow) Result() core.Node { return w.result }

// Remap applies id simplification if it has been computed, otherwise
// returns the id unchanged.
func (w *Workflow) Remap(id string) string {
	if w.remapping == nil {
		return id
	}
	if mapped, ok := w.remapping[id]; ok {
		return mapped
	}
	return id
}

// SimplifyIDs renumbers step ids to short sequential names of the form
// `<task>-<n>`, counting per task in sequence order. Nested workflows are
// renumbered recursively with the parent's number as an infix, so a step
// inside the second `analyse` call becomes e.g. `scan-2-1`.
func (w *Workflow) SimplifyIDs(infix []string) {
	counters := make(map[string]int)
	w.remapping = make(map[string]string)
	for _, step := range w.OrderedSteps() {
		counters[step.task.Name]++
		parts := append([]string{step.task.Name}, infix...)
		parts = append(parts, strconv.Itoa(counters[step.task.Name]))
		w.remapping[step.ID()] = strings.Join(parts, "-")

		if step.kind == NestedStep && step.sub != nil {
			step.sub.SimplifyIDs(append(infix, strconv.Itoa(counters[step.task.Name])))
		}
	}
}

// Freeze marks the workflow immutable. Renderers receive only frozen
// workflows.
func (w *Workflow) Freeze() {
	w.frozen = true
	for _, step := range w.steps {
		if step.sub != nil {
			step.sub.Freeze()
		}
	}
}

// Frozen reports whether construction has completed.
func (w *Workflow) Frozen() bool { return w.frozen }

// Assimilate combines two sibling workflows into one, unifying steps and
// tasks. Steps sharing an id must have identical content; tasks sharing a
// name must wrap the same callable. Mismatched identifiers mean the
// content hash is flawed, and abort the merge.
func Assimilate(left, right *Workflow) (*Workflow, error) {
	merged := New()
	merged.fieldSep = left.fieldSep

	for name, task := range left.tasks {
		merged.tasks[name] = task
	}
	for name, task := range right.tasks {
		if existing, ok := merged.tasks[name]; ok {
			if !sameTarget(existing.Target, task.Target) {
				return nil, fmt.Errorf("two tasks have same name but do not match: %s", name)
			}
			continue
		}
		merged.tasks[name] = task
	}

	adoptParam := func(p *Parameter) error {
		if existing, ok := merged.params[p.name]; ok {
			if !existing.typ.Equals(p.typ) {
				return fmt.Errorf(
					"parameter %q redeclared as %s, previously %s",
					p.name, p.typ.FriendlyName(), existing.typ.FriendlyName(),
				)
			}
		} else {
			merged.params[p.name] = p
		}
		// References hold the parameter object itself, so re-point its
		// workflow even when another object of the same name won.
		p.wf = merged
		return nil
	}
	for _, p := range left.Parameters() {
		if err := adoptParam(p); err != nil {
			return nil, err
		}
	}
	for _, p := range right.Parameters() {
		if err := adoptParam(p); err != nil {
			return nil, err
		}
	}

	adopt := func(step *Step) error {
		id := step.ID()
		if existing, ok := merged.byID[id]; ok {
			if !existing.equal(step) {
				return fmt.Errorf("two steps have same ID but do not match: %s", id)
			}
			return nil
		}
		step.setWorkflow(merged)
		merged.steps = append(merged.steps, step)
		merged.byID[id] = step
		return nil
	}
	for _, step := range left.steps {
		if err := adopt(step); err != nil {
			return nil, err
		}
	}
	for _, step := range right.steps {
		if err := adopt(step); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
