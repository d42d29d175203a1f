// Package core defines the symbolic value model shared by every other
// package: raw values, the reference contract, and the expression tree that
// lets references participate in ordinary algebra without being evaluated.
//
// Nothing in this package executes anything. An expression such as
// Add(a, b), where a and b are references to step outputs, produces a new
// symbolic node that retains both operands; the value only exists once an
// external workflow engine runs the rendered graph. Asking a node for a
// concrete value (AsRaw) is only legal for raw leaves, and fails with
// UnevaluatableError everywhere else.
//
// The tree is a closed set of kinds (KindRaw, KindReference, KindBinary,
// KindUnary), so consumers such as renderers can match exhaustively on
// Node.Kind rather than probing an open type hierarchy.
package core
