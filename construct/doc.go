// Package construct turns a sequence of deferred task calls into a static
// workflow graph.
//
// A construction pass is owned by a Builder: tasks are declared with Task
// or Subworkflow, called with named arguments, and every call records a
// step instead of running anything. Finishing the pass freezes the graph
// and hands it to a renderer. Builders share nothing, so concurrent passes
// on separate goroutines cannot interfere.
package construct
