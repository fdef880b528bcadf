package history

import (
	"sort"
)

// TypeDecl declares an owner type and its direct parent. Base is empty for
// root types.
type TypeDecl struct {
	Name string
	Base string
}

// TypeRegistry maps concrete owner types to the root of their hierarchy.
// Roots are computed once by NewTypeRegistry; lookups never walk the hierarchy.
type TypeRegistry struct {
	roots map[string]string
}

// NewTypeRegistry validates decls and computes the root of every type.
//
// Declaring the same type twice is allowed when both declarations agree.
// Unknown bases, conflicting declarations and cycles are configuration errors.
func NewTypeRegistry(decls ...TypeDecl) (*TypeRegistry, error) {
	parents := make(map[string]string, len(decls))
	for _, d := range decls {
		if d.Name == "" {
			return nil, configError("type declaration with empty name")
		}
		if old, ok := parents[d.Name]; ok {
			if old == d.Base {
				continue
			}
			return nil, configError("type %q declared with conflicting bases %q and %q", d.Name, old, d.Base)
		}
		parents[d.Name] = d.Base
	}

	roots := make(map[string]string, len(parents))
	for name := range parents {
		root, err := walkToRoot(name, parents)
		if err != nil {
			return nil, err
		}
		roots[name] = root
	}

	return &TypeRegistry{roots: roots}, nil
}

func walkToRoot(name string, parents map[string]string) (string, error) {
	seen := map[string]bool{name: true}
	cur := name
	for {
		base, ok := parents[cur]
		if !ok {
			return "", configError("type %q extends undeclared type %q", name, cur)
		}
		if base == "" {
			return cur, nil
		}
		if seen[base] {
			return "", configError("type %q has a cyclic hierarchy through %q", name, base)
		}
		seen[base] = true
		cur = base
	}
}

// Root returns the root type of typ.
func (r *TypeRegistry) Root(typ string) (string, error) {
	root, ok := r.roots[typ]
	if !ok {
		return "", &Error{Code: CodeUnknownType, Message: "undeclared owner type " + typ}
	}
	return root, nil
}

// Types returns all declared type names in sorted order.
func (r *TypeRegistry) Types() []string {
	names := make([]string, 0, len(r.roots))
	for name := range r.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
