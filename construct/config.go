package construct

import "log/slog"

// Config holds the construction-time settings for one pass. It lives on
// the Builder rather than in any global state, so concurrent passes can
// never observe each other's overrides.
type Config struct {
	// FlattenAllNested inlines subworkflow steps into the parent's step
	// list instead of wrapping them as nested steps.
	FlattenAllNested bool
	// AllowPositionalArgs permits positional arguments, matched against
	// declared input order.
	AllowPositionalArgs bool
	// AllowPlainDictFields permits field access on plain string-keyed
	// mapping types, which cannot promise the field exists.
	AllowPlainDictFields bool
	// FieldSeparator joins reference name segments; default "/".
	FieldSeparator string
	// FieldIndexTypes names the index types rendered as `[i]` rather
	// than as fields; only "int" is supported.
	FieldIndexTypes string
	// SimplifyIDs renumbers step ids to short sequential names once the
	// pass finishes.
	SimplifyIDs bool
}

func defaultConfig() Config {
	return Config{
		FieldSeparator:  "/",
		FieldIndexTypes: "int",
	}
}

// Option configures a Builder at creation.
type Option func(*Builder)

// FlattenAllNested inlines all subworkflows into their parent.
func FlattenAllNested() Option {
	return func(b *Builder) { b.cfg.FlattenAllNested = true }
}

// AllowPositionalArgs permits positional arguments.
func AllowPositionalArgs() Option {
	return func(b *Builder) { b.cfg.AllowPositionalArgs = true }
}

// AllowPlainDictFields permits field access on mapping-typed references.
func AllowPlainDictFields() Option {
	return func(b *Builder) { b.cfg.AllowPlainDictFields = true }
}

// SimplifyIDs renumbers ids to `<task>-<n>` on completion.
func SimplifyIDs() Option {
	return func(b *Builder) { b.cfg.SimplifyIDs = true }
}

// WithFieldSeparator overrides the reference name separator.
func WithFieldSeparator(sep string) Option {
	return func(b *Builder) { b.cfg.FieldSeparator = sep }
}

// WithEnv supplies the environment that capture lists resolve against.
func WithEnv(env *Env) Option {
	return func(b *Builder) { b.env = env }
}

// WithLogger attaches a logger for construction debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.log = logger }
}

// PushConfig temporarily replaces the builder's configuration, returning a
// restore function to defer. Restoration runs on error paths too, so a
// nested override can never leak out of its scope.
func (b *Builder) PushConfig(cfg Config) (restore func()) {
	previous := b.cfg
	if cfg.FieldSeparator == "" {
		cfg.FieldSeparator = previous.FieldSeparator
	}
	if cfg.FieldIndexTypes == "" {
		cfg.FieldIndexTypes = previous.FieldIndexTypes
	}
	b.cfg = cfg
	return func() { b.cfg = previous }
}

// Configuration returns the active configuration.
func (b *Builder) Configuration() Config { return b.cfg }
