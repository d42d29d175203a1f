package workflow

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/internal/canon"
)

// StepKind discriminates the closed set of step variants.
type StepKind int

const (
	// TaskStep is a single invocation of a plain task.
	TaskStep StepKind = iota
	// NestedStep wraps a child workflow built from a subworkflow call.
	NestedStep
)

// Step is one concrete invocation of a task bound to resolved arguments.
//
// The step id is content-derived from the task name and the canonical
// encodings of its arguments, computed lazily and frozen on the first read.
type Step struct {
	wf   *Workflow
	kind StepKind
	task *Task
	args map[string]core.Node
	seq  int
	// sub is the child workflow; non-nil exactly when kind is NestedStep.
	sub *Workflow

	id string
}

func newStep(wf *Workflow, kind StepKind, task *Task, args map[string]any, sub *Workflow) (*Step, error) {
	bound := make(map[string]core.Node, len(args))
	for key, value := range args {
		node, err := core.Val(value)
		if err != nil {
			return nil, fmt.Errorf("non-references must be a serializable type: %s>%v: %w", key, value, err)
		}
		bound[key] = node
	}
	return &Step{wf: wf, kind: kind, task: task, args: bound, sub: sub}, nil
}

// Kind reports whether this is a plain or a nested step.
func (s *Step) Kind() StepKind { return s.kind }

// Task returns the task this step invokes.
func (s *Step) Task() *Task { return s.task }

// SequenceNum is the creation-order number assigned by the sequencer for
// the construction scope this step was made in.
func (s *Step) SequenceNum() int { return s.seq }

// Child returns the nested workflow, or nil for a plain task step.
func (s *Step) Child() *Workflow { return s.sub }

// Workflow returns the owning workflow.
func (s *Step) Workflow() *Workflow { return s.wf }

// ArgNames returns the argument names in sorted order.
func (s *Step) ArgNames() []string {
	names := make([]string, 0, len(s.args))
	for name := range s.args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arg returns the bound value for one argument.
func (s *Step) Arg(name string) (core.Node, bool) {
	node, ok := s.args[name]
	return node, ok
}

// ID is the content-derived identity, `<task>-<hash>`. The first read
// freezes it; a divergence on a later read means an argument was mutated
// after hashing, which is an internal consistency bug, so it panics.
func (s *Step) ID() string {
	generated := s.generateID()
	if s.id == "" {
		s.id = generated
		return s.id
	}
	if generated != s.id {
		panic(fmt.Sprintf("cannot change a step after requesting its ID: %s", s.task))
	}
	return s.id
}

// Name is the display name: the id, unless the workflow has remapped it to
// a simplified form.
func (s *Step) Name() string {
	return s.wf.Remap(s.ID())
}

func (s *Step) generateID() string {
	pairs := make(map[string]string, len(s.args))
	for key, node := range s.args {
		pairs[key] = node.Repr()
	}
	return s.task.Name + "-" + canon.HashPairs(s.task.Name, pairs)
}

// equal compares steps by content: kind, task name and argument encodings.
func (s *Step) equal(other *Step) bool {
	if s.kind != other.kind || s.task.Name != other.task.Name || len(s.args) != len(other.args) {
		return false
	}
	for key, node := range s.args {
		o, ok := other.args[key]
		if !ok || node.Repr() != o.Repr() {
			return false
		}
	}
	return true
}

// Ref returns a reference to this step's output.
func (s *Step) Ref() *StepReference {
	typ := s.task.Sig.Returns
	if typ == cty.NilType {
		typ = cty.DynamicPseudoType
	}
	return &StepReference{step: s, typ: typ}
}

// setWorkflow re-parents the step during assimilation or flattening.
func (s *Step) setWorkflow(wf *Workflow) { s.wf = wf }

// setSequenceNum renumbers the step when it is inlined into a parent scope.
func (s *Step) setSequenceNum(seq int) { s.seq = seq }
