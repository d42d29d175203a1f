package workflow

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
)

// Input declares one named argument of a task.
type Input struct {
	Name string
	Type cty.Type
	// Default supplies a value when the caller omits the argument.
	// cty.NilVal means the argument is required unless Optional is set.
	Default cty.Value
	// Optional arguments may be omitted without a default.
	Optional bool
}

// Required reports whether a caller must bind this input.
func (in Input) Required() bool {
	return !in.Optional && in.Default == cty.NilVal
}

// Signature is the declared calling contract of a task: its named inputs,
// result type, and the global names its body reads.
type Signature struct {
	Inputs  []Input
	Returns cty.Type
	// Captures lists module-scope names the body reads beyond its
	// arguments. Each must resolve against the construction environment.
	Captures []string
}

// Input finds a declared input by name.
func (s Signature) Input(name string) (Input, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return Input{}, false
}

// Task is a named unit of deferred computation as recorded in a workflow.
// Identity is the name; the target is retained for introspection by
// execution backends and is never invoked during construction.
type Task struct {
	Name   string
	Target any
	Sig    Signature
}

func (t *Task) String() string { return t.Name }

// NamingClashError is the panic value raised when two distinct callables
// are registered under one task name. This is fatal and non-recoverable:
// the graph cannot name both, and continuing would mis-attribute steps.
type NamingClashError struct {
	Name string
}

func (e *NamingClashError) Error() string {
	return fmt.Sprintf("naming clash for task functions: %s", e.Name)
}

// sameTarget compares two task targets for identity. Function values are
// compared by code pointer since Go functions are not comparable.
func sameTarget(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Func && bv.Kind() == reflect.Func {
		return av.Pointer() == bv.Pointer()
	}
	if av.Kind() != bv.Kind() {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// RegisterTask notes a task in this workflow's registry, wrapping it once
// per distinct callable. Re-registering the same name with a different
// target panics with NamingClashError.
func (w *Workflow) RegisterTask(name string, target any, sig Signature) *Task {
	if existing, ok := w.tasks[name]; ok {
		if !sameTarget(existing.Target, target) {
			panic(&NamingClashError{Name: name})
		}
		return existing
	}
	task := &Task{Name: name, Target: target, Sig: sig}
	w.tasks[name] = task
	return task
}
