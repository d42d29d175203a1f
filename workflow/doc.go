// Package workflow holds the static graph produced by a construction pass:
// tasks, steps, parameters and nested subgraphs, together with the concrete
// reference types that point into it.
//
// Everything here is created during a single synchronous construction pass
// and is immutable afterwards. Step identities are content-derived: a step's
// id is a hash of its task name and canonically-encoded arguments, so
// identical calls collapse to one logical step wherever they occur. Ids are
// frozen on first read; a later divergence indicates a mutation bug and is
// treated as fatal.
package workflow
