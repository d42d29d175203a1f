// Package render defines the boundary between finished workflows and the
// formats external engines consume. Renderers receive only frozen
// workflows and must treat them as read-only; one render call produces a
// document per workflow, keyed by subworkflow name with RootKey for the
// root.
package render

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/workplan/workflow"
)

// RootKey names the root workflow's document in a render result.
const RootKey = "__root__"

// Config carries renderer-specific settings, merged over the renderer's
// defaults.
type Config map[string]any

// BaseRenderer is the minimal contract every renderer meets. A renderer
// additionally implements exactly one of RawRenderer or
// StructuredRenderer.
type BaseRenderer interface {
	Name() string
	DefaultConfig() Config
}

// RawRenderer produces final output text itself, one string per workflow.
type RawRenderer interface {
	BaseRenderer
	RenderRaw(wf *workflow.Workflow, cfg Config) (map[string]string, error)
}

// StructuredRenderer produces serializable documents; the boundary owns
// turning them into text.
type StructuredRenderer interface {
	BaseRenderer
	Render(wf *workflow.Workflow, cfg Config) (map[string]any, error)
}

// RenderCall is the uniform shape both renderer variants are adapted to.
type RenderCall func(wf *workflow.Workflow, cfg Config) (map[string]string, error)

// Select probes which variant the renderer implements and adapts it.
// Structured output is serialized as YAML; pretty switches to a wider
// indent.
func Select(r BaseRenderer, pretty bool) (RenderCall, error) {
	switch impl := r.(type) {
	case RawRenderer:
		return impl.RenderRaw, nil
	case StructuredRenderer:
		return func(wf *workflow.Workflow, cfg Config) (map[string]string, error) {
			docs, err := impl.Render(wf, cfg)
			if err != nil {
				return nil, err
			}
			out := make(map[string]string, len(docs))
			for name, doc := range docs {
				text, err := marshalYAML(doc, pretty)
				if err != nil {
					return nil, fmt.Errorf("serialize %s: %w", name, err)
				}
				out[name] = text
			}
			return out, nil
		}, nil
	default:
		return nil, fmt.Errorf("renderer %s implements neither raw nor structured rendering", r.Name())
	}
}

// MergeConfig layers overrides on top of the renderer's defaults.
func MergeConfig(r BaseRenderer, overrides Config) Config {
	merged := make(Config)
	for k, v := range r.DefaultConfig() {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func marshalYAML(doc any, pretty bool) (string, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	indent := 2
	if pretty {
		indent = 4
	}
	enc.SetIndent(indent)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write delivers rendered documents. An empty or "-" target streams the
// root document (and inlines the rest after separators) to w. A target
// containing "%" writes one file per document, substituting the document
// name. Otherwise a single-document result goes to the target file and a
// multi-document result is an error.
func Write(docs map[string]string, target string, w io.Writer) error {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	switch {
	case strings.Contains(target, "%"):
		for _, name := range names {
			path := strings.ReplaceAll(target, "%", fileNameFor(name))
			if err := os.WriteFile(path, []byte(docs[name]), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
		return nil
	case target == "" || target == "-":
		// Root first, then the nested documents in name order.
		if root, ok := docs[RootKey]; ok {
			if _, err := io.WriteString(w, root); err != nil {
				return err
			}
		}
		for _, name := range names {
			if name == RootKey {
				continue
			}
			if _, err := fmt.Fprintf(w, "\n--- # %s\n%s", name, docs[name]); err != nil {
				return err
			}
		}
		return nil
	default:
		if len(docs) > 1 {
			return fmt.Errorf(
				"%d documents to write but %q has no %% pattern for their names", len(docs), target,
			)
		}
		for _, name := range names {
			if err := os.WriteFile(target, []byte(docs[name]), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
		}
		return nil
	}
}

func fileNameFor(doc string) string {
	if doc == RootKey {
		return "root"
	}
	return doc
}
