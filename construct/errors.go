package construct

import (
	"errors"
	"fmt"
)

// Code distinguishes the conditions under which a construction pass can be
// rejected. All of them share one error family so callers can report a
// task name and declaration site uniformly.
type Code int

const (
	// CodeInvalidArgument: an argument was neither a reference nor a
	// serializable raw value.
	CodeInvalidArgument Code = iota + 1
	// CodeMissingArgument: a required argument was not bound.
	CodeMissingArgument
	// CodeUnexpectedArgument: an argument name is not in the signature.
	CodeUnexpectedArgument
	// CodePositionalArgument: positional arguments were supplied while
	// disallowed.
	CodePositionalArgument
	// CodeTaskInsideTask: a task was invoked inside a plain task body,
	// which only ever runs in the execution backend.
	CodeTaskInsideTask
	// CodeNoReferences: a subworkflow or construction result contained
	// no references and so cannot name a graph.
	CodeNoReferences
	// CodeUnresolvedGlobal: a captured free variable is absent or
	// lacks an explicit type.
	CodeUnresolvedGlobal
	// CodeRecursiveCall: a subworkflow unconditionally re-entered
	// itself during construction.
	CodeRecursiveCall
	// CodeBuildOnlyMisuse: a construction-time-only binding was used
	// without a concrete value to fold.
	CodeBuildOnlyMisuse
	// CodePassFinished: the builder already produced its workflow.
	CodePassFinished
)

// Error is the single family of user-facing construction errors. Any such
// error aborts the current pass; no partial graph is returned.
type Error struct {
	Code Code
	// Task is the task being called or declared, when known.
	Task string
	// DeclSite is the task's declaration site, when known.
	DeclSite string
	// Caller is the enclosing task for call-legality errors.
	Caller string
	// Arg is the offending argument or variable name, when relevant.
	Arg string
	// Detail carries any extra context.
	Detail string
}

func (e *Error) Error() string {
	var msg string
	switch e.Code {
	case CodeInvalidArgument:
		msg = fmt.Sprintf("non-references must be a serializable type: %s", e.Arg)
	case CodeMissingArgument:
		msg = fmt.Sprintf("missing a required argument: '%s'", e.Arg)
	case CodeUnexpectedArgument:
		msg = fmt.Sprintf("got an unexpected argument: '%s'", e.Arg)
	case CodePositionalArgument:
		msg = "Arguments must _always_ be named"
	case CodeTaskInsideTask:
		msg = fmt.Sprintf(
			"%s cannot be called inside the body of task %s: a task body only runs in the execution backend, never during construction; declare %s as a subworkflow if it should compose other tasks",
			e.Task, e.Caller, e.Caller,
		)
	case CodeNoReferences:
		msg = "output data does not contain any references"
	case CodeUnresolvedGlobal:
		msg = fmt.Sprintf(
			"cannot use free variable %s: only module-scope values with an explicit type may become parameters", e.Arg,
		)
	case CodeRecursiveCall:
		msg = "unconditional recursive call detected during construction"
	case CodeBuildOnlyMisuse:
		msg = fmt.Sprintf("binding %s is construction-time only and has no value to fold", e.Arg)
	case CodePassFinished:
		msg = "construction pass has already finished"
	default:
		msg = "construction failed"
	}
	if e.Task != "" && e.Code != CodeTaskInsideTask {
		msg += fmt.Sprintf(" (task %s", e.Task)
		if e.DeclSite != "" {
			msg += ", declared at " + e.DeclSite
		}
		msg += ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CodeOf extracts the construction error code, or zero for foreign errors.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
