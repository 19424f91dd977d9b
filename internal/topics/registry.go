package topics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Registry holds the topic sequence. Reads are concurrent with the watcher's
// replacements, so access goes through a RWMutex.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Topic
}

// NewRegistry builds a registry from the given topics, preserving order.
func NewRegistry(ts []Topic) (*Registry, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("registry needs at least one topic")
	}
	r := &Registry{byName: make(map[string]Topic, len(ts))}
	for _, t := range ts {
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.Name)
		}
		r.order = append(r.order, t.Name)
		r.byName[t.Name] = t
	}
	return r, nil
}

// Default returns a registry of the built-in topics.
func Default() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic("topics: built-in defaults invalid: " + err.Error())
	}
	return r
}

func validate(t Topic) error {
	if t.Name == "" {
		return fmt.Errorf("topic with empty name")
	}
	if t.Namespace != "data_product" && t.Namespace != "policy_pack" {
		return fmt.Errorf("topic %q: unknown namespace %q", t.Name, t.Namespace)
	}
	if len(t.Required) == 0 {
		return fmt.Errorf("topic %q: no required fields", t.Name)
	}
	if t.Instructions == "" {
		return fmt.Errorf("topic %q: no instructions", t.Name)
	}
	return nil
}

// Get returns the named topic.
func (r *Registry) Get(name string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Sequence returns the topic names in interview order.
func (r *Registry) Sequence() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the topics in interview order.
func (r *Registry) All() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// First returns the opening topic.
func (r *Registry) First() Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[r.order[0]]
}

// Replace swaps in a new record for an existing topic. The sequence itself
// never changes at runtime; only topic content is reloadable.
func (r *Registry) Replace(t Topic) error {
	if err := validate(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[t.Name]; !ok {
		return fmt.Errorf("unknown topic %q", t.Name)
	}
	r.byName[t.Name] = t
	return nil
}

// LoadDir applies per-topic YAML overrides from dir, one file per topic.
// Files must name a known topic; empty override fields keep the built-in
// value. Returns the names of overridden topics in sorted order.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read topics dir %s: %w", dir, err)
	}

	var loaded []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		topic, err := r.loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, topic.Name)
	}
	sort.Strings(loaded)
	return loaded, nil
}

func (r *Registry) loadFile(path string) (Topic, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Topic{}, fmt.Errorf("load topic file %s: %w", path, err)
	}

	var override Topic
	if err := k.Unmarshal("", &override); err != nil {
		return Topic{}, fmt.Errorf("parse topic file %s: %w", path, err)
	}
	if override.Name == "" {
		return Topic{}, fmt.Errorf("topic file %s has no name", path)
	}

	current, ok := r.Get(override.Name)
	if !ok {
		return Topic{}, fmt.Errorf("topic file %s overrides unknown topic %q", path, override.Name)
	}

	merged := applyOverride(current, override)
	if err := r.Replace(merged); err != nil {
		return Topic{}, fmt.Errorf("topic file %s: %w", path, err)
	}
	return merged, nil
}

func applyOverride(base, override Topic) Topic {
	out := base
	if override.Namespace != "" {
		out.Namespace = override.Namespace
	}
	if len(override.Required) > 0 {
		out.Required = override.Required
	}
	if len(override.Keywords) > 0 {
		out.Keywords = override.Keywords
	}
	if override.Instructions != "" {
		out.Instructions = override.Instructions
	}
	if override.Greeting != "" {
		out.Greeting = override.Greeting
	}
	if override.Completion != "" {
		out.Completion = override.Completion
	}
	return out
}
