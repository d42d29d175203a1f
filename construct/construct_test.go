package construct

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/workflow"
)

func incrementTask() *TaskFn {
	return Task("increment", func(num int) int { return num + 1 }, workflow.Signature{
		Inputs:  []workflow.Input{{Name: "num", Type: cty.Number, Default: cty.NilVal}},
		Returns: cty.Number,
	})
}

func doubleTask() *TaskFn {
	return Task("double", func(num int) int { return num * 2 }, workflow.Signature{
		Inputs:  []workflow.Input{{Name: "num", Type: cty.Number, Default: cty.NilVal}},
		Returns: cty.Number,
	})
}

func TestSingleCall(t *testing.T) {
	b := NewBuilder()
	increment := incrementTask()

	result, err := increment.Call(b, Args{"num": 3})
	require.NoError(t, err)

	wf, err := Construct(b, result)
	require.NoError(t, err)

	steps := wf.Steps()
	require.Len(t, steps, 1)
	step := steps[0]
	assert.True(t, strings.HasPrefix(step.ID(), "increment-"))
	assert.Equal(t, 0, step.SequenceNum())
	assert.True(t, wf.Frozen())

	arg, ok := step.Arg("num")
	require.True(t, ok)
	v, err := core.AsRaw(arg)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(3)))
}

func TestDeterministicIdentity(t *testing.T) {
	build := func() string {
		b := NewBuilder()
		result, err := incrementTask().Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)
		return wf.Steps()[0].ID()
	}
	assert.Equal(t, build(), build())
}

func TestChainedCalls(t *testing.T) {
	b := NewBuilder()
	increment := incrementTask()
	double := doubleTask()

	first, err := increment.Call(b, Args{"num": 3})
	require.NoError(t, err)
	second, err := double.Call(b, Args{"num": first})
	require.NoError(t, err)

	wf, err := Construct(b, second)
	require.NoError(t, err)
	require.Len(t, wf.Steps(), 2)

	arg, ok := wf.OrderedSteps()[1].Arg("num")
	require.True(t, ok)
	ref, ok := arg.(*workflow.StepReference)
	require.True(t, ok)
	assert.Same(t, wf.OrderedSteps()[0], ref.Step())
}

func TestRepeatedCallCollapses(t *testing.T) {
	b := NewBuilder()
	increment := incrementTask()

	first, err := increment.Call(b, Args{"num": 3})
	require.NoError(t, err)
	dup, err := increment.Call(b, Args{"num": 3})
	require.NoError(t, err)
	other, err := increment.Call(b, Args{"num": 4})
	require.NoError(t, err)

	wf, err := Construct(b, other)
	require.NoError(t, err)
	require.Len(t, wf.Steps(), 2)
	assert.Same(t, first.(*workflow.StepReference).Step(), dup.(*workflow.StepReference).Step())

	// The collapsed call consumed no sequence number.
	seqs := []int{}
	for _, s := range wf.OrderedSteps() {
		seqs = append(seqs, s.SequenceNum())
	}
	assert.Equal(t, []int{0, 1}, seqs)
}

func TestArgumentBinding(t *testing.T) {
	t.Run("positional arguments are rejected with the exact message", func(t *testing.T) {
		b := NewBuilder()
		_, err := incrementTask().CallPositional(b, []any{3}, nil)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "Arguments must _always_ be named"), err.Error())
		assert.Equal(t, CodePositionalArgument, CodeOf(err))
	})

	t.Run("positional arguments allowed by option", func(t *testing.T) {
		b := NewBuilder(AllowPositionalArgs())
		result, err := incrementTask().CallPositional(b, []any{3}, nil)
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)
		_, ok := wf.Steps()[0].Arg("num")
		assert.True(t, ok)
	})

	t.Run("missing required argument", func(t *testing.T) {
		b := NewBuilder()
		_, err := incrementTask().Call(b, Args{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing a required argument: 'num'")
		assert.Contains(t, err.Error(), "task increment")
		assert.Equal(t, CodeMissingArgument, CodeOf(err))
	})

	t.Run("unexpected argument", func(t *testing.T) {
		b := NewBuilder()
		_, err := incrementTask().Call(b, Args{"num": 1, "nun": 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got an unexpected argument: 'nun'")
		assert.Equal(t, CodeUnexpectedArgument, CodeOf(err))
	})

	t.Run("defaults fill omitted arguments", func(t *testing.T) {
		task := Task("greet", nil, workflow.Signature{
			Inputs: []workflow.Input{
				{Name: "name", Type: cty.String, Default: cty.StringVal("world")},
			},
			Returns: cty.String,
		})
		b := NewBuilder()
		result, err := task.Call(b, Args{})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		arg, ok := wf.Steps()[0].Arg("name")
		require.True(t, ok)
		v, err := core.AsRaw(arg)
		require.NoError(t, err)
		assert.Equal(t, "world", v.AsString())
	})

	t.Run("unserializable argument", func(t *testing.T) {
		b := NewBuilder()
		_, err := incrementTask().Call(b, Args{"num": func() {}})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	})

	t.Run("concrete arguments convert to the declared type", func(t *testing.T) {
		b := NewBuilder()
		_, err := incrementTask().Call(b, Args{"num": "not a number"})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	})
}

func TestGlobalCapture(t *testing.T) {
	captureTask := func() *TaskFn {
		return Task("scaled", nil, workflow.Signature{
			Inputs:   []workflow.Input{{Name: "num", Type: cty.Number, Default: cty.NilVal}},
			Returns:  cty.Number,
			Captures: []string{"FACTOR"},
		})
	}

	t.Run("typed globals become parameters", func(t *testing.T) {
		env := NewEnv().Typed("FACTOR", cty.Number, cty.NumberIntVal(10))
		b := NewBuilder(WithEnv(env))

		result, err := captureTask().Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		params := wf.FindParameters()
		require.Len(t, params, 1)
		assert.Equal(t, "FACTOR", params[0].Name())
		assert.True(t, params[0].Default().RawEquals(cty.NumberIntVal(10)))

		arg, ok := wf.Steps()[0].Arg("FACTOR")
		require.True(t, ok)
		_, isRef := arg.(*workflow.ParameterReference)
		assert.True(t, isRef)
	})

	t.Run("missing globals error naming variable and task", func(t *testing.T) {
		b := NewBuilder()
		_, err := captureTask().Call(b, Args{"num": 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FACTOR")
		assert.Contains(t, err.Error(), "task scaled")
		assert.Equal(t, CodeUnresolvedGlobal, CodeOf(err))
	})

	t.Run("untyped globals cannot become parameters", func(t *testing.T) {
		env := NewEnv().Untyped("FACTOR", cty.NumberIntVal(10))
		b := NewBuilder(WithEnv(env))
		_, err := captureTask().Call(b, Args{"num": 3})
		assert.Equal(t, CodeUnresolvedGlobal, CodeOf(err))
	})

	t.Run("construction-time values fold into the step", func(t *testing.T) {
		env := NewEnv().AtBuild("FACTOR", cty.NumberIntVal(10))
		b := NewBuilder(WithEnv(env))

		result, err := captureTask().Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		assert.Empty(t, wf.FindParameters())
		arg, ok := wf.Steps()[0].Arg("FACTOR")
		require.True(t, ok)
		v, err := core.AsRaw(arg)
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.NumberIntVal(10)))
	})
}

func TestSubworkflow(t *testing.T) {
	incrementTwice := func(increment *TaskFn) *TaskFn {
		return Subworkflow("increment_twice", workflow.Signature{
			Inputs:  []workflow.Input{{Name: "num", Type: cty.Number, Default: cty.NilVal}},
			Returns: cty.Number,
		}, func(b *Builder, params map[string]core.Node) (core.Node, error) {
			first, err := increment.Call(b, Args{"num": params["num"]})
			if err != nil {
				return nil, err
			}
			return increment.Call(b, Args{"num": first})
		})
	}

	t.Run("wraps a child workflow as one nested step", func(t *testing.T) {
		increment := incrementTask()
		b := NewBuilder()

		result, err := incrementTwice(increment).Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		require.Len(t, wf.Steps(), 1)
		nested := wf.Steps()[0]
		assert.Equal(t, workflow.NestedStep, nested.Kind())

		child := nested.Child()
		require.NotNil(t, child)
		assert.Len(t, child.Steps(), 2)
		assert.True(t, child.Frozen())
		require.NotNil(t, child.Result())

		// Child sequence numbers restart from 0 in their own scope.
		assert.Equal(t, 0, child.OrderedSteps()[0].SequenceNum())
		assert.Equal(t, 1, child.OrderedSteps()[1].SequenceNum())

		// The call argument becomes a child parameter.
		params := child.FindParameters()
		require.Len(t, params, 1)
		assert.Equal(t, "num", params[0].Name())
	})

	t.Run("flattening inlines the child steps", func(t *testing.T) {
		increment := incrementTask()
		b := NewBuilder(FlattenAllNested())

		result, err := incrementTwice(increment).Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		require.Len(t, wf.Steps(), 2)
		for i, step := range wf.OrderedSteps() {
			assert.Equal(t, workflow.TaskStep, step.Kind())
			assert.Equal(t, i, step.SequenceNum())
		}
	})

	t.Run("a result without references is rejected", func(t *testing.T) {
		sub := Subworkflow("constant", workflow.Signature{Returns: cty.Number},
			func(b *Builder, params map[string]core.Node) (core.Node, error) {
				return core.Int(42), nil
			})
		b := NewBuilder()
		_, err := sub.Call(b, Args{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output data does not contain any references")
		assert.Equal(t, CodeNoReferences, CodeOf(err))
	})

	t.Run("captured globals pass through the nesting boundary", func(t *testing.T) {
		increment := incrementTask()
		scaled := Subworkflow("scaled", workflow.Signature{
			Inputs:   []workflow.Input{{Name: "num", Type: cty.Number, Default: cty.NilVal}},
			Returns:  cty.Number,
			Captures: []string{"CONSTANT"},
		}, func(b *Builder, params map[string]core.Node) (core.Node, error) {
			return increment.Call(b, Args{"num": core.Add(params["num"], params["CONSTANT"])})
		})

		env := NewEnv().Typed("CONSTANT", cty.Number, cty.NumberIntVal(5))
		b := NewBuilder(WithEnv(env))
		result, err := scaled.Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)

		// The parent lifts CONSTANT as its own parameter and passes it in.
		require.Len(t, wf.Steps(), 1)
		nested := wf.Steps()[0]
		arg, ok := nested.Arg("CONSTANT")
		require.True(t, ok)
		_, isRef := arg.(*workflow.ParameterReference)
		assert.True(t, isRef)

		childParams := nested.Child().FindParameters()
		names := []string{}
		for _, p := range childParams {
			names = append(names, p.Name())
		}
		assert.Equal(t, []string{"CONSTANT", "num"}, names)
	})

	t.Run("unconditional recursion is detected", func(t *testing.T) {
		var recursive *TaskFn
		recursive = Subworkflow("recurse", workflow.Signature{Returns: cty.Number},
			func(b *Builder, params map[string]core.Node) (core.Node, error) {
				return recursive.Call(b, Args{})
			})
		b := NewBuilder()
		_, err := recursive.Call(b, Args{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unconditional recursive call")
		assert.Equal(t, CodeRecursiveCall, CodeOf(err))
	})
}

func TestTaskInsideTask(t *testing.T) {
	b := NewBuilder()
	increment := incrementTask()

	exit := b.EnterTaskBody("outer")
	_, err := increment.Call(b, Args{"num": 3})
	exit()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment cannot be called inside the body of task outer")
	assert.Contains(t, err.Error(), "declare outer as a subworkflow")
	assert.Equal(t, CodeTaskInsideTask, CodeOf(err))

	// After exiting the body, calls work again.
	_, err = increment.Call(b, Args{"num": 3})
	assert.NoError(t, err)
}

func TestFinish(t *testing.T) {
	t.Run("constant results cannot name a graph", func(t *testing.T) {
		b := NewBuilder()
		_, err := Construct(b, 42)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output data does not contain any references")
	})

	t.Run("a finished builder rejects further calls", func(t *testing.T) {
		b := NewBuilder()
		result, err := incrementTask().Call(b, Args{"num": 3})
		require.NoError(t, err)
		_, err = Construct(b, result)
		require.NoError(t, err)

		_, err = incrementTask().Call(b, Args{"num": 4})
		assert.Equal(t, CodePassFinished, CodeOf(err))
		_, err = b.Finish(result)
		assert.Equal(t, CodePassFinished, CodeOf(err))
	})

	t.Run("simplify ids option renames on completion", func(t *testing.T) {
		b := NewBuilder(SimplifyIDs())
		result, err := incrementTask().Call(b, Args{"num": 3})
		require.NoError(t, err)
		wf, err := Construct(b, result)
		require.NoError(t, err)
		assert.Equal(t, "increment-1", wf.Steps()[0].Name())
	})
}

func TestBuilderIsolation(t *testing.T) {
	// Concurrent passes share no state: every workflow sees its own
	// sequence numbers starting at zero.
	var wg sync.WaitGroup
	results := make([]*workflow.Workflow, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := NewBuilder()
			increment := incrementTask()
			first, err := increment.Call(b, Args{"num": i})
			if !assert.NoError(t, err) {
				return
			}
			second, err := increment.Call(b, Args{"num": first})
			if !assert.NoError(t, err) {
				return
			}
			wf, err := Construct(b, second)
			if !assert.NoError(t, err) {
				return
			}
			results[i] = wf
		}(i)
	}
	wg.Wait()

	for _, wf := range results {
		require.NotNil(t, wf)
		steps := wf.OrderedSteps()
		require.Len(t, steps, 2)
		assert.Equal(t, 0, steps[0].SequenceNum())
		assert.Equal(t, 1, steps[1].SequenceNum())
	}
}

func TestPushConfig(t *testing.T) {
	b := NewBuilder()
	require.False(t, b.Configuration().FlattenAllNested)

	restore := b.PushConfig(Config{FlattenAllNested: true})
	assert.True(t, b.Configuration().FlattenAllNested)
	assert.Equal(t, "/", b.Configuration().FieldSeparator)
	restore()
	assert.False(t, b.Configuration().FlattenAllNested)
}
