package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

// DefaultType is the only owner type when no types file is configured.
const DefaultType = "Entity"

// TypesError reports a malformed types file.
type TypesError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *TypesError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadTypes reads owner type declarations from a CUE file:
//
//	types: {
//		Content: {}
//		Article: base: "Content"
//	}
//
// An empty path yields the single root type DefaultType.
func LoadTypes(path string) ([]history.TypeDecl, error) {
	if path == "" {
		return []history.TypeDecl{{Name: DefaultType}}, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read types file: %w", err)
	}
	return ParseTypes(path, src)
}

// ParseTypes is LoadTypes over an in-memory source. filename is used for
// error positions only.
func ParseTypes(filename string, src []byte) ([]history.TypeDecl, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, &TypesError{Field: "types", Message: "types is required", Pos: v.Pos()}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []history.TypeDecl
	for iter.Next() {
		decl := history.TypeDecl{Name: iter.Label()}

		baseVal := iter.Value().LookupPath(cue.ParsePath("base"))
		if baseVal.Exists() {
			base, err := baseVal.String()
			if err != nil {
				return nil, &TypesError{
					Field:   "types." + decl.Name + ".base",
					Message: "base must be a string",
					Pos:     baseVal.Pos(),
				}
			}
			decl.Base = base
		}
		decls = append(decls, decl)
	}

	if len(decls) == 0 {
		return nil, &TypesError{Field: "types", Message: "at least one type is required", Pos: typesVal.Pos()}
	}
	return decls, nil
}

// Registry loads the types file and builds the registry from it.
func Registry(path string) (*history.TypeRegistry, error) {
	decls, err := LoadTypes(path)
	if err != nil {
		return nil, err
	}
	return history.NewTypeRegistry(decls...)
}

func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &TypesError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
