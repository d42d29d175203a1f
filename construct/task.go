package construct

import (
	"fmt"
	"runtime"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/workflow"
)

// Args carries the named arguments of one task call. Values may be
// core.Node (references, expressions), cty.Value, or plain Go values that
// infer a serializable type.
type Args map[string]any

// BodyFunc is the construction-time body of a subworkflow. It receives a
// node per declared input and capture and returns the subworkflow's
// result. It composes further task calls through the builder; it never
// computes anything itself.
type BodyFunc func(b *Builder, params map[string]core.Node) (core.Node, error)

type taskKind int

const (
	// plainTask wraps a backend callable; calling it records one step.
	plainTask taskKind = iota
	// subworkflowTask wraps a BodyFunc evaluated during construction to
	// produce a nested (or inlined) workflow.
	subworkflowTask
)

// TaskFn is a declared, deferred task. Declaring one never runs anything;
// only Call records steps, and only against an explicit Builder.
type TaskFn struct {
	name     string
	kind     taskKind
	sig      workflow.Signature
	declSite string

	// target is the backend callable for a plain task. Construction only
	// carries it; the execution backend is what eventually invokes it.
	target any
	// body is the composition function for a subworkflow.
	body BodyFunc
}

// Task declares a plain task: a named callable whose body runs only in the
// execution backend.
func Task(name string, target any, sig workflow.Signature) *TaskFn {
	return &TaskFn{
		name: name, kind: plainTask, sig: sig,
		target: target, declSite: callSite(),
	}
}

// Subworkflow declares a composing task: its body runs during construction
// and must produce a result holding references.
func Subworkflow(name string, sig workflow.Signature, body BodyFunc) *TaskFn {
	return &TaskFn{
		name: name, kind: subworkflowTask, sig: sig,
		body: body, declSite: callSite(),
	}
}

func callSite() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Name returns the declared task name.
func (t *TaskFn) Name() string { return t.name }

// Signature returns the declared calling contract.
func (t *TaskFn) Signature() workflow.Signature { return t.sig }

// DeclSite returns the source location the task was declared at.
func (t *TaskFn) DeclSite() string { return t.declSite }

// IsSubworkflow reports whether the body composes other tasks during
// construction.
func (t *TaskFn) IsSubworkflow() bool { return t.kind == subworkflowTask }

// Call records an invocation of the task with named arguments and returns
// the node standing for its future result.
func (t *TaskFn) Call(b *Builder, args Args) (core.Node, error) {
	return t.call(b, nil, args)
}

// CallPositional is Call with leading positional arguments, matched
// against declared input order. It is rejected unless the builder allows
// positional arguments.
func (t *TaskFn) CallPositional(b *Builder, positional []any, named Args) (core.Node, error) {
	return t.call(b, positional, named)
}

func (t *TaskFn) call(b *Builder, positional []any, named Args) (core.Node, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if err := b.checkCallLegal(t); err != nil {
		return nil, err
	}
	bound, err := t.bind(b, positional, named)
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case subworkflowTask:
		if b.cfg.FlattenAllNested {
			return t.callFlattened(b, bound)
		}
		return t.callNested(b, bound)
	default:
		return t.callPlain(b, bound)
	}
}

// bind resolves positional and named arguments against the signature,
// applies defaults, and wraps every non-reference as a raw node.
func (t *TaskFn) bind(b *Builder, positional []any, named Args) (map[string]core.Node, error) {
	if len(positional) > 0 && !b.cfg.AllowPositionalArgs {
		return nil, &Error{Code: CodePositionalArgument, Task: t.name, DeclSite: t.declSite}
	}
	if len(positional) > len(t.sig.Inputs) {
		return nil, &Error{
			Code: CodeUnexpectedArgument, Task: t.name, DeclSite: t.declSite,
			Arg: fmt.Sprintf("positional #%d", len(t.sig.Inputs)+1),
		}
	}

	bound := make(map[string]core.Node, len(positional)+len(named))
	for i, value := range positional {
		in := t.sig.Inputs[i]
		node, err := t.wrapArg(in, value)
		if err != nil {
			return nil, err
		}
		bound[in.Name] = node
	}
	for name, value := range named {
		in, ok := t.sig.Input(name)
		if !ok {
			return nil, &Error{
				Code: CodeUnexpectedArgument, Task: t.name, DeclSite: t.declSite, Arg: name,
			}
		}
		if _, dup := bound[name]; dup {
			return nil, &Error{
				Code: CodeUnexpectedArgument, Task: t.name, DeclSite: t.declSite,
				Arg: name, Detail: "bound both positionally and by name",
			}
		}
		node, err := t.wrapArg(in, value)
		if err != nil {
			return nil, err
		}
		bound[name] = node
	}
	for _, in := range t.sig.Inputs {
		if _, ok := bound[in.Name]; ok {
			continue
		}
		if in.Default != cty.NilVal {
			raw, err := core.NewRaw(in.Default)
			if err != nil {
				return nil, &Error{
					Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
					Arg: in.Name, Detail: err.Error(),
				}
			}
			bound[in.Name] = raw
			continue
		}
		if in.Required() {
			return nil, &Error{
				Code: CodeMissingArgument, Task: t.name, DeclSite: t.declSite, Arg: in.Name,
			}
		}
	}
	return bound, nil
}

// wrapArg wraps one argument value and, for concrete values with a
// declared input type, converts it so mismatches surface at construction.
func (t *TaskFn) wrapArg(in workflow.Input, value any) (core.Node, error) {
	node, err := core.Val(value)
	if err != nil {
		return nil, &Error{
			Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
			Arg: in.Name, Detail: err.Error(),
		}
	}
	raw, ok := node.(core.Raw)
	if !ok || in.Type == cty.NilType || raw.Type().Equals(in.Type) {
		return node, nil
	}
	converted, err := convert.Convert(raw.Value(), in.Type)
	if err != nil {
		return nil, &Error{
			Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
			Arg: in.Name, Detail: err.Error(),
		}
	}
	wrapped, err := core.NewRaw(converted)
	if err != nil {
		return nil, &Error{
			Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
			Arg: in.Name, Detail: err.Error(),
		}
	}
	return wrapped, nil
}

// capture is one resolved entry of the declared capture list.
type capture struct {
	name string
	bnd  binding
}

// lookupCaptures resolves the declared capture list against the builder's
// environment. Every name must exist and carry an explicit type; anything
// else cannot become a graph input.
func (t *TaskFn) lookupCaptures(b *Builder) ([]capture, error) {
	captures := make([]capture, 0, len(t.sig.Captures))
	for _, name := range t.sig.Captures {
		bnd, ok := b.env.lookup(name)
		if !ok || !bnd.typed {
			return nil, &Error{
				Code: CodeUnresolvedGlobal, Task: t.name, DeclSite: t.declSite, Arg: name,
			}
		}
		if bnd.atBuild && bnd.val == cty.NilVal {
			return nil, &Error{
				Code: CodeBuildOnlyMisuse, Task: t.name, DeclSite: t.declSite, Arg: name,
			}
		}
		captures = append(captures, capture{name: name, bnd: bnd})
	}
	return captures, nil
}

// captureNode turns a resolved capture into the node bound on the given
// workflow: a parameter reference for graph inputs, a folded raw for
// construction-time-only values.
func (t *TaskFn) captureNode(wf *workflow.Workflow, c capture) (core.Node, error) {
	if c.bnd.atBuild {
		raw, err := core.NewRaw(c.bnd.val)
		if err != nil {
			return nil, &Error{
				Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
				Arg: c.name, Detail: err.Error(),
			}
		}
		return raw, nil
	}
	param, err := wf.AddParameter(c.name, c.bnd.typ, c.bnd.val)
	if err != nil {
		return nil, err
	}
	return param.Ref(), nil
}

// callPlain records one step on the current workflow.
func (t *TaskFn) callPlain(b *Builder, bound map[string]core.Node) (core.Node, error) {
	captures, err := t.lookupCaptures(b)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any, len(bound)+len(captures))
	for name, node := range bound {
		args[name] = node
	}
	for _, c := range captures {
		node, err := t.captureNode(b.wf, c)
		if err != nil {
			return nil, err
		}
		args[c.name] = node
	}
	task := b.wf.RegisterTask(t.name, t.target, t.sig)
	ref, err := b.wf.AddStep(task, args, b.seq.Next)
	if err != nil {
		return nil, err
	}
	b.log.Debug("recorded step", "task", t.name, "step", ref.Step().ID())
	return ref, nil
}

// callNested builds a child workflow from the body and wraps it as one
// nested step on the parent. The child's parameters are the call's
// arguments plus the captured globals; captured graph inputs are also
// lifted onto the parent so they pass through the nesting boundary.
func (t *TaskFn) callNested(b *Builder, bound map[string]core.Node) (core.Node, error) {
	captures, err := t.lookupCaptures(b)
	if err != nil {
		return nil, err
	}

	parent := b.wf
	child := workflow.New()
	child.SetFieldSeparator(b.cfg.FieldSeparator)

	restoreSeq := b.seq.Scope()
	b.wf = child
	f := &frame{task: t}
	b.frames = append(b.frames, f)
	restore := func() {
		b.frames = b.frames[:len(b.frames)-1]
		b.wf = parent
		restoreSeq()
	}

	params, err := t.childParams(child, bound, captures)
	if err != nil {
		restore()
		return nil, err
	}
	result, err := t.body(b, params)
	restore()
	if err != nil {
		return nil, err
	}
	if err := t.setChildResult(child, result); err != nil {
		return nil, err
	}

	args := make(map[string]any, len(bound)+len(captures))
	for name, node := range bound {
		args[name] = node
	}
	for _, c := range captures {
		if c.bnd.atBuild {
			continue
		}
		node, err := t.captureNode(parent, c)
		if err != nil {
			return nil, err
		}
		args[c.name] = node
	}
	task := parent.RegisterTask(t.name, t, t.sig)
	ref, err := parent.AddNestedStep(task, args, child, b.seq.Next)
	if err != nil {
		return nil, err
	}
	b.log.Debug("recorded nested step",
		"task", t.name, "step", ref.Step().ID(), "inner_steps", len(child.Steps()),
	)
	return ref, nil
}

// callFlattened evaluates the body directly against the parent builder, so
// the subworkflow's steps land in the parent's step list.
func (t *TaskFn) callFlattened(b *Builder, bound map[string]core.Node) (core.Node, error) {
	captures, err := t.lookupCaptures(b)
	if err != nil {
		return nil, err
	}
	params := make(map[string]core.Node, len(bound)+len(captures))
	for name, node := range bound {
		params[name] = node
	}
	for _, c := range captures {
		node, err := t.captureNode(b.wf, c)
		if err != nil {
			return nil, err
		}
		params[c.name] = node
	}

	f := &frame{task: t}
	b.frames = append(b.frames, f)
	result, err := t.body(b, params)
	b.frames = b.frames[:len(b.frames)-1]
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.References()) == 0 {
		return nil, &Error{Code: CodeNoReferences, Task: t.name, DeclSite: t.declSite}
	}
	return result, nil
}

// childParams declares the child workflow's parameters: one per bound
// argument, one per captured graph input, and a folded raw per
// construction-time-only capture.
func (t *TaskFn) childParams(child *workflow.Workflow, bound map[string]core.Node, captures []capture) (map[string]core.Node, error) {
	params := make(map[string]core.Node, len(bound)+len(captures))
	for name, node := range bound {
		typ := node.Type()
		if in, ok := t.sig.Input(name); ok && in.Type != cty.NilType {
			typ = in.Type
		}
		def := cty.NilVal
		if raw, ok := node.(core.Raw); ok {
			def = raw.Value()
		}
		p, err := child.AddParameter(name, typ, def)
		if err != nil {
			return nil, err
		}
		params[name] = p.Ref()
	}
	for _, c := range captures {
		if c.bnd.atBuild {
			raw, err := core.NewRaw(c.bnd.val)
			if err != nil {
				return nil, &Error{
					Code: CodeInvalidArgument, Task: t.name, DeclSite: t.declSite,
					Arg: c.name, Detail: err.Error(),
				}
			}
			params[c.name] = raw
			continue
		}
		p, err := child.AddParameter(c.name, c.bnd.typ, c.bnd.val)
		if err != nil {
			return nil, err
		}
		params[c.name] = p.Ref()
	}
	return params, nil
}

func (t *TaskFn) setChildResult(child *workflow.Workflow, result core.Node) error {
	if result == nil || len(result.References()) == 0 {
		return &Error{Code: CodeNoReferences, Task: t.name, DeclSite: t.declSite}
	}
	if err := child.SetResult(result); err != nil {
		return fmt.Errorf("subworkflow %s: %w", t.name, err)
	}
	return nil
}
