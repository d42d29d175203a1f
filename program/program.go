// Package program is the declarative front end: an HCL description of
// tasks, parameters and deferred calls is parsed and replayed against the
// construction engine. It adds no second construction path; everything
// flows through the same Builder the Go API uses.
package program

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/construct"
	"github.com/vk/workplan/core"
	"github.com/vk/workplan/workflow"
)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "task", LabelNames: []string{"name"}},
		{Type: "param", LabelNames: []string{"name"}},
		{Type: "call", LabelNames: []string{"task", "label"}},
	},
	Attributes: []hcl.AttributeSchema{
		{Name: "result"},
	},
}

var taskSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "input", LabelNames: []string{"name"}},
	},
	Attributes: []hcl.AttributeSchema{
		{Name: "returns"},
	},
}

var inputSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
		{Name: "optional"},
	},
}

var paramSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
	},
}

var callSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "arguments"},
	},
}

type paramDecl struct {
	name string
	typ  cty.Type
	def  cty.Value
}

type callDecl struct {
	task  string
	label string
	args  map[string]hcl.Expression
	rng   hcl.Range
}

// Program is a parsed but not yet constructed workflow description. Calls
// replay in file order, so sequence numbers follow the program text.
type Program struct {
	tasks  map[string]workflow.Signature
	params []paramDecl
	calls  []callDecl
	result hcl.Expression
}

// Loader parses HCL program files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// LoadFiles parses one or more program files into a single Program.
func (l *Loader) LoadFiles(paths ...string) (*Program, error) {
	prog := newProgram()
	for _, path := range paths {
		file, diags := l.parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, diags
		}
		if err := prog.addBody(file.Body); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

// LoadSource parses in-memory HCL source, mainly for tests.
func (l *Loader) LoadSource(filename string, src []byte) (*Program, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	prog := newProgram()
	if err := prog.addBody(file.Body); err != nil {
		return nil, err
	}
	return prog, nil
}

func newProgram() *Program {
	return &Program{tasks: make(map[string]workflow.Signature)}
}

// TaskNames returns the declared task names, sorted.
func (p *Program) TaskNames() []string {
	names := make([]string, 0, len(p.tasks))
	for name := range p.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Program) addBody(body hcl.Body) error {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return diags
	}
	for _, block := range content.Blocks {
		var err error
		switch block.Type {
		case "task":
			err = p.addTask(block)
		case "param":
			err = p.addParam(block)
		case "call":
			err = p.addCall(block)
		}
		if err != nil {
			return err
		}
	}
	if attr, ok := content.Attributes["result"]; ok {
		if p.result != nil {
			return fmt.Errorf("%s: duplicate result attribute", attr.Range)
		}
		p.result = attr.Expr
	}
	return nil
}

func (p *Program) addTask(block *hcl.Block) error {
	name := block.Labels[0]
	if _, dup := p.tasks[name]; dup {
		return fmt.Errorf("%s: task %q declared twice", block.DefRange, name)
	}
	content, diags := block.Body.Content(taskSchema)
	if diags.HasErrors() {
		return diags
	}

	sig := workflow.Signature{Returns: cty.DynamicPseudoType}
	if attr, ok := content.Attributes["returns"]; ok {
		typ, diags := typeexpr.TypeConstraint(attr.Expr)
		if diags.HasErrors() {
			return diags
		}
		sig.Returns = typ
	}
	for _, inBlock := range content.Blocks {
		in, err := decodeInput(inBlock)
		if err != nil {
			return err
		}
		sig.Inputs = append(sig.Inputs, in)
	}
	p.tasks[name] = sig
	return nil
}

func decodeInput(block *hcl.Block) (workflow.Input, error) {
	in := workflow.Input{Name: block.Labels[0], Default: cty.NilVal}
	content, diags := block.Body.Content(inputSchema)
	if diags.HasErrors() {
		return in, diags
	}
	typ, diags := typeexpr.TypeConstraint(content.Attributes["type"].Expr)
	if diags.HasErrors() {
		return in, diags
	}
	in.Type = typ
	if attr, ok := content.Attributes["default"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return in, diags
		}
		in.Default = val
	}
	if attr, ok := content.Attributes["optional"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return in, diags
		}
		in.Optional = val.True()
	}
	return in, nil
}

func (p *Program) addParam(block *hcl.Block) error {
	content, diags := block.Body.Content(paramSchema)
	if diags.HasErrors() {
		return diags
	}
	typ, diags := typeexpr.TypeConstraint(content.Attributes["type"].Expr)
	if diags.HasErrors() {
		return diags
	}
	decl := paramDecl{name: block.Labels[0], typ: typ, def: cty.NilVal}
	if attr, ok := content.Attributes["default"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return diags
		}
		decl.def = val
	}
	p.params = append(p.params, decl)
	return nil
}

func (p *Program) addCall(block *hcl.Block) error {
	content, diags := block.Body.Content(callSchema)
	if diags.HasErrors() {
		return diags
	}
	decl := callDecl{
		task:  block.Labels[0],
		label: block.Labels[1],
		args:  make(map[string]hcl.Expression),
		rng:   block.DefRange,
	}
	for _, argsBlock := range content.Blocks {
		attrs, diags := argsBlock.Body.JustAttributes()
		if diags.HasErrors() {
			return diags
		}
		for name, attr := range attrs {
			decl.args[name] = attr.Expr
		}
	}
	p.calls = append(p.calls, decl)
	return nil
}

// Construct replays the program against a fresh Builder and returns the
// finished workflow.
func (p *Program) Construct(opts ...construct.Option) (*workflow.Workflow, error) {
	b := construct.NewBuilder(opts...)
	sc := &scope{
		calls:          make(map[string]core.Node),
		params:         make(map[string]*workflow.Parameter),
		allowPlainDict: b.Configuration().AllowPlainDictFields,
	}

	for _, decl := range p.params {
		param, err := b.Workflow().AddParameter(decl.name, decl.typ, decl.def)
		if err != nil {
			return nil, err
		}
		sc.params[decl.name] = param
	}

	taskFns := make(map[string]*construct.TaskFn, len(p.tasks))
	for name, sig := range p.tasks {
		taskFns[name] = construct.Task(name, nil, sig)
	}

	for _, decl := range p.calls {
		tf, ok := taskFns[decl.task]
		if !ok {
			return nil, fmt.Errorf("%s: call of undeclared task %q", decl.rng, decl.task)
		}
		if _, dup := sc.calls[decl.label]; dup {
			return nil, fmt.Errorf("%s: duplicate call label %q", decl.rng, decl.label)
		}
		args := make(construct.Args, len(decl.args))
		for name, expr := range decl.args {
			node, err := nodeFromExpr(expr, sc)
			if err != nil {
				return nil, err
			}
			args[name] = node
		}
		result, err := tf.Call(b, args)
		if err != nil {
			return nil, err
		}
		sc.calls[decl.label] = result
	}

	if p.result == nil {
		return nil, fmt.Errorf("program declares no result")
	}
	result, err := nodeFromExpr(p.result, sc)
	if err != nil {
		return nil, err
	}
	return construct.Construct(b, result)
}
