package placeholder

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ResolveTree walks decoded configuration data and returns a copy in which
// every string leaf is resolved. Mapping keys and non-string scalars are
// copied unchanged. Mapping entries are visited in sorted key order so a
// seeded resolver yields the same tree on every run.
func (r *Resolver) ResolveTree(data any) (any, error) {
	return r.resolveValue("$", data)
}

func (r *Resolver) resolveValue(path string, data any) (any, error) {
	switch v := data.(type) {
	case string:
		out, err := r.Resolve(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for _, key := range slices.Sorted(maps.Keys(v)) {
			resolved, err := r.resolveValue(path+"."+key, v[key])
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case map[any]any:
		keys := make([]any, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		slices.SortFunc(keys, func(a, b any) int {
			return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
		})
		out := make(map[any]any, len(v))
		for _, key := range keys {
			resolved, err := r.resolveValue(fmt.Sprintf("%s.%v", path, key), v[key])
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := r.resolveValue(path+"["+strconv.Itoa(i)+"]", item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			resolved, err := r.Resolve(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return data, nil
	}
}

// ResolveNode returns a deep copy of a YAML node tree with every !!str scalar
// value resolved. Keys, tags, styles, comments and anchors are preserved;
// aliases point at the copied anchor so both share one generated value.
func (r *Resolver) ResolveNode(node *yaml.Node) (*yaml.Node, error) {
	w := nodeWalker{r: r, copies: make(map[*yaml.Node]*yaml.Node)}
	return w.walk("$", node, false)
}

type nodeWalker struct {
	r      *Resolver
	copies map[*yaml.Node]*yaml.Node
}

func (w *nodeWalker) walk(path string, n *yaml.Node, isKey bool) (*yaml.Node, error) {
	if n == nil {
		return nil, nil
	}
	if done, ok := w.copies[n]; ok {
		return done, nil
	}
	out := *n
	out.Content = nil
	w.copies[n] = &out

	switch n.Kind {
	case yaml.ScalarNode:
		if !isKey && n.ShortTag() == "!!str" {
			value, err := w.r.Resolve(n.Value)
			if err != nil {
				return nil, fmt.Errorf("%s (line %d): %w", path, n.Line, err)
			}
			out.Value = value
		}
	case yaml.AliasNode:
		target, err := w.walk(path, n.Alias, isKey)
		if err != nil {
			return nil, err
		}
		out.Alias = target
	case yaml.MappingNode:
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			key, err := w.walk(path, keyNode, true)
			if err != nil {
				return nil, err
			}
			value, err := w.walk(path+"."+keyNode.Value, n.Content[i+1], false)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, key, value)
		}
	default:
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for i, child := range n.Content {
			childPath := path
			if n.Kind == yaml.SequenceNode {
				childPath = path + "[" + strconv.Itoa(i) + "]"
			}
			resolved, err := w.walk(childPath, child, false)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, resolved)
		}
	}
	return &out, nil
}
