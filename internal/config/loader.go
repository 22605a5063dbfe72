package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// MaxExpansionDepth bounds recursive ${VAR} expansion.
const MaxExpansionDepth = 8

// EnvPrefix marks environment variables overlaid onto the config.
const EnvPrefix = "NOWHERE_"

//go:embed schema.cue
var schemaSource string

// ValidationError reports a config that does not satisfy the schema.
type ValidationError struct {
	Path    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
	}
	return "config: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type source struct {
	name string
	data []byte
	path string
}

// Loader merges YAML sources, environment overrides and defaults into a
// Config.
type Loader struct {
	sources []source
	lookup  func(string) (string, bool)
	environ func() []string
}

// NewLoader returns a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{lookup: os.LookupEnv, environ: os.Environ}
}

// WithFile adds a required YAML file.
func (l *Loader) WithFile(path string) *Loader {
	l.sources = append(l.sources, source{name: path, path: path})
	return l
}

// WithYAML adds an inline YAML document.
func (l *Loader) WithYAML(doc string) *Loader {
	l.sources = append(l.sources, source{name: "inline", data: []byte(doc)})
	return l
}

// WithEnv replaces the environment (tests).
func (l *Loader) WithEnv(env map[string]string) *Loader {
	l.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	l.environ = func() []string {
		out := make([]string, 0, len(env))
		for k, v := range env {
			out = append(out, k+"="+v)
		}
		slices.Sort(out)
		return out
	}
	return l
}

// Load reads a single config file. An empty path yields the defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.WithFile(path)
	}
	return l.Load()
}

// Load merges every source and returns the validated config.
func (l *Loader) Load() (*Config, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, src := range l.sources {
		data := src.data
		if src.path != "" {
			var err error
			data, err = os.ReadFile(src.path)
			if err != nil {
				return nil, fmt.Errorf("config: read %s: %w", src.path, err)
			}
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", src.name, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		top := doc.Content[0]
		if top.Kind != yaml.MappingNode {
			return nil, &ValidationError{Message: src.name + ": top level must be a mapping"}
		}
		merge(root, top)
	}

	l.overlayEnv(root)
	l.expand(root)

	if err := validate(root); err != nil {
		return nil, err
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, &ValidationError{Message: err.Error(), Err: err}
	}
	cfg.applyDefaults()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge folds src into dst. Mappings merge key by key; anything else is
// replaced.
func merge(dst, src *yaml.Node) {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		existing := lookupKey(dst, key.Value)
		switch {
		case existing == nil:
			dst.Content = append(dst.Content, key, val)
		case existing.Kind == yaml.MappingNode && val.Kind == yaml.MappingNode:
			merge(existing, val)
		default:
			*existing = *val
		}
	}
}

func lookupKey(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// overlayEnv applies NOWHERE_A__B=v as a.b: v. Values resolve like plain
// YAML scalars, so NOWHERE_EFFECTS__MAX_ATTEMPTS=5 is an integer.
func (l *Loader) overlayEnv(root *yaml.Node) {
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__")
		if slices.Contains(path, "") || !overlayable[path[0]] {
			continue
		}
		cur := root
		for _, seg := range path[:len(path)-1] {
			next := lookupKey(cur, seg)
			if next == nil || next.Kind != yaml.MappingNode {
				m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
				if next == nil {
					cur.Content = append(cur.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: seg}, m)
				} else {
					*next = *m
					m = next
				}
				next = m
			}
			cur = next
		}
		leaf := path[len(path)-1]
		scalar := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
		if existing := lookupKey(cur, leaf); existing != nil {
			*existing = *scalar
		} else {
			cur.Content = append(cur.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: leaf}, scalar)
		}
	}
}

// overlayable lists the top-level sections environment variables may set.
var overlayable = map[string]bool{"version": true, "data": true, "log": true, "effects": true, "replay": true}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandString substitutes set variables until the string stops changing or
// MaxExpansionDepth rounds have run. Unset variables are left verbatim.
func (l *Loader) expandString(s string) string {
	for range MaxExpansionDepth {
		next := envRef.ReplaceAllStringFunc(s, func(ref string) string {
			m := envRef.FindStringSubmatch(ref)
			name := m[1]
			if name == "" {
				name = m[2]
			}
			if v, ok := l.lookup(name); ok {
				return v
			}
			return ref
		})
		if next == s {
			break
		}
		s = next
	}
	return s
}

// expand walks every scalar. A plain scalar whose value changed is
// re-resolved, so `max_attempts: ${N}` decodes as an integer while quoted
// scalars stay strings.
func (l *Loader) expand(n *yaml.Node) {
	switch n.Kind {
	case yaml.ScalarNode:
		if !strings.Contains(n.Value, "$") {
			return
		}
		expanded := l.expandString(n.Value)
		if expanded == n.Value {
			return
		}
		n.Value = expanded
		if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle|yaml.TaggedStyle) == 0 {
			n.Tag = ""
		}
	case yaml.MappingNode:
		// Keys are never expanded.
		for i := 1; i < len(n.Content); i += 2 {
			l.expand(n.Content[i])
		}
	default:
		for _, c := range n.Content {
			l.expand(c)
		}
	}
}

// validate checks the merged document against #Config.
func validate(root *yaml.Node) error {
	var raw map[string]any
	if err := root.Decode(&raw); err != nil {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(raw)
	if err := val.Err(); err != nil {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	return nil
}
