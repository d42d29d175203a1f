package workflow

import (
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
)

// outField is the implicit output field of every step.
const outField = "out"

// StepReference names a step's output. It never holds a value; it records
// only the step whose future result it stands for.
type StepReference struct {
	step *Step
	typ  cty.Type
}

// Step returns the referenced step.
func (r *StepReference) Step() *Step { return r.step }

// Kind implements core.Node.
func (r *StepReference) Kind() core.Kind { return core.KindReference }

// Type is the declared result type of the referenced step's task.
func (r *StepReference) Type() cty.Type { return r.typ }

// Name implements core.Reference, e.g. `increment-1/out` after
// simplification.
func (r *StepReference) Name() string {
	return r.step.Name() + r.sep() + outField
}

// Repr implements core.Node using the frozen step id.
func (r *StepReference) Repr() string {
	return r.step.ID() + r.sep() + outField
}

// References implements core.Node; a reference yields itself.
func (r *StepReference) References() []core.Reference { return []core.Reference{r} }

// EqualNode implements core.Node.
func (r *StepReference) EqualNode(other core.Node) bool {
	o, ok := other.(*StepReference)
	return ok && r.Repr() == o.Repr()
}

// Root implements core.Reference; a step reference is its own root.
func (r *StepReference) Root() core.Reference { return r }

func (r *StepReference) sep() string { return r.step.wf.fieldSep }

func (r *StepReference) String() string { return r.Name() }

// ParameterReference names an externally captured value.
type ParameterReference struct {
	param *Parameter
	typ   cty.Type
}

// Parameter returns the referenced parameter.
func (r *ParameterReference) Parameter() *Parameter { return r.param }

// Kind implements core.Node.
func (r *ParameterReference) Kind() core.Kind { return core.KindReference }

// Type implements core.Node.
func (r *ParameterReference) Type() cty.Type { return r.typ }

// Name implements core.Reference; parameters render under their own name.
func (r *ParameterReference) Name() string { return r.param.name }

// Repr implements core.Node. The `param:` prefix keeps parameter
// references from colliding with step ids in step hashes.
func (r *ParameterReference) Repr() string { return "param:" + r.param.name }

// References implements core.Node.
func (r *ParameterReference) References() []core.Reference { return []core.Reference{r} }

// EqualNode implements core.Node.
func (r *ParameterReference) EqualNode(other core.Node) bool {
	o, ok := other.(*ParameterReference)
	return ok && r.Repr() == o.Repr()
}

// Root implements core.Reference.
func (r *ParameterReference) Root() core.Reference { return r }

func (r *ParameterReference) sep() string { return r.param.wf.fieldSep }

func (r *ParameterReference) String() string { return r.Name() }

// FieldReference is derived from a parent reference plus a field name. It
// delegates identity and workflow lookup to the parent rather than owning
// anything itself.
type FieldReference struct {
	parent core.Reference
	field  string
	typ    cty.Type
}

// Field returns the accessed field name.
func (r *FieldReference) Field() string { return r.field }

// Parent returns the reference this was derived from.
func (r *FieldReference) Parent() core.Reference { return r.parent }

// Kind implements core.Node.
func (r *FieldReference) Kind() core.Kind { return core.KindReference }

// Type implements core.Node.
func (r *FieldReference) Type() cty.Type { return r.typ }

// Name implements core.Reference.
func (r *FieldReference) Name() string {
	return r.parent.Name() + sepOf(r.parent) + r.field
}

// Repr implements core.Node.
func (r *FieldReference) Repr() string {
	return r.parent.Repr() + sepOf(r.parent) + r.field
}

// References implements core.Node.
func (r *FieldReference) References() []core.Reference { return []core.Reference{r} }

// EqualNode implements core.Node.
func (r *FieldReference) EqualNode(other core.Node) bool {
	o, ok := other.(*FieldReference)
	return ok && r.Repr() == o.Repr()
}

// Root implements core.Reference.
func (r *FieldReference) Root() core.Reference { return r.parent.Root() }

func (r *FieldReference) String() string { return r.Name() }

// IteratedReference is derived from a parent reference plus an iteration
// index. The iterated flag records that it came from drawing on a lazy
// iteration rather than explicit indexing, for renderers that care.
type IteratedReference struct {
	parent   core.Reference
	index    int
	typ      cty.Type
	iterated bool
}

// Index returns the iteration index.
func (r *IteratedReference) Index() int { return r.index }

// Parent returns the reference this was derived from.
func (r *IteratedReference) Parent() core.Reference { return r.parent }

// Iterated reports whether this reference was produced by iteration (as
// opposed to direct indexing).
func (r *IteratedReference) Iterated() bool { return r.iterated }

// Kind implements core.Node.
func (r *IteratedReference) Kind() core.Kind { return core.KindReference }

// Type implements core.Node.
func (r *IteratedReference) Type() cty.Type { return r.typ }

// Name implements core.Reference.
func (r *IteratedReference) Name() string {
	return r.parent.Name() + "[" + strconv.Itoa(r.index) + "]"
}

// Repr implements core.Node.
func (r *IteratedReference) Repr() string {
	return r.parent.Repr() + "[" + strconv.Itoa(r.index) + "]"
}

// References implements core.Node.
func (r *IteratedReference) References() []core.Reference { return []core.Reference{r} }

// EqualNode implements core.Node.
func (r *IteratedReference) EqualNode(other core.Node) bool {
	o, ok := other.(*IteratedReference)
	return ok && r.Repr() == o.Repr()
}

// Root implements core.Reference.
func (r *IteratedReference) Root() core.Reference { return r.parent.Root() }

func (r *IteratedReference) String() string { return r.Name() }

func sepOf(ref core.Reference) string {
	switch root := ref.Root().(type) {
	case *StepReference:
		return root.sep()
	case *ParameterReference:
		return root.sep()
	default:
		return "/"
	}
}

// WorkflowOf finds the workflow a reference is tied to, following derived
// references back to their root.
func WorkflowOf(ref core.Reference) *Workflow {
	switch root := ref.Root().(type) {
	case *StepReference:
		return root.step.wf
	case *ParameterReference:
		return root.param.wf
	default:
		return nil
	}
}

// Field derives a typed reference to a named field of the parent's value.
// The parent's declared type must be an object carrying that field;
// string-keyed maps are allowed only when allowPlainDict is set, since a
// map type cannot promise the field exists.
func Field(parent core.Reference, name string, allowPlainDict bool) (core.Reference, error) {
	t := parent.Type()
	switch {
	case t.IsObjectType():
		if !t.HasAttribute(name) {
			return nil, fmt.Errorf(
				"field %q is not present on %s (type %s)", name, parent.Name(), t.FriendlyName(),
			)
		}
		return &FieldReference{parent: parent, field: name, typ: t.AttributeType(name)}, nil
	case t.IsMapType():
		if !allowPlainDict {
			return nil, fmt.Errorf(
				"cannot access field %q on %s: plain mapping fields are disabled (type %s)",
				name, parent.Name(), t.FriendlyName(),
			)
		}
		return &FieldReference{parent: parent, field: name, typ: t.ElementType()}, nil
	default:
		return nil, fmt.Errorf(
			"cannot access field %q on %s: type %s has no named fields",
			name, parent.Name(), t.FriendlyName(),
		)
	}
}

// Index derives a typed reference to one element of the parent's value.
func Index(parent core.Reference, i int) (core.Reference, error) {
	typ, err := elementType(parent, i)
	if err != nil {
		return nil, err
	}
	return &IteratedReference{parent: parent, index: i, typ: typ}, nil
}

func elementType(parent core.Reference, i int) (cty.Type, error) {
	t := parent.Type()
	switch {
	case t.IsListType() || t.IsSetType():
		return t.ElementType(), nil
	case t.IsTupleType():
		elems := t.TupleElementTypes()
		if i < 0 || i >= len(elems) {
			return cty.NilType, fmt.Errorf(
				"index %d out of range for %s (tuple of length %d)", i, parent.Name(), len(elems),
			)
		}
		return elems[i], nil
	case t == cty.DynamicPseudoType:
		return cty.DynamicPseudoType, nil
	default:
		return cty.NilType, fmt.Errorf(
			"cannot iterate %s: type %s is not a sequence", parent.Name(), t.FriendlyName(),
		)
	}
}

// Iterator is an unbounded lazy sequence of iterated references. Consumers
// decide how many to draw, for example by zipping against a fixed-length
// sequence.
type Iterator struct {
	parent core.Reference
	next   int
}

// Iterate begins iterating a reference. The reference's declared type must
// be a sequence; tuples additionally give the iteration a known length.
func Iterate(parent core.Reference) (*Iterator, error) {
	if _, err := elementType(parent, 0); err != nil {
		return nil, err
	}
	return &Iterator{parent: parent}, nil
}

// Next yields the reference for the next index. It never runs out: bounds
// are the consumer's concern, except for tuples where the fixed length is
// enforced.
func (it *Iterator) Next() (core.Reference, error) {
	typ, err := elementType(it.parent, it.next)
	if err != nil {
		return nil, err
	}
	ref := &IteratedReference{parent: it.parent, index: it.next, typ: typ, iterated: true}
	it.next++
	return ref, nil
}

// Len reports the fixed length of the iteration, which is only known for
// tuple-typed references.
func (it *Iterator) Len() (int, error) {
	t := it.parent.Type()
	if t.IsTupleType() {
		return len(t.TupleElementTypes()), nil
	}
	return 0, fmt.Errorf(
		"this iterable reference does not have a known fixed length; "+
			"declare the result as a tuple type to fix its length",
	)
}
