// Package handlers provides the built-in macro functions:
//
//	include              parse another document in place
//	content/locate       location id of a reference, or null
//	content/locate/node  same as content/locate
//	content/locate/object item id of a reference, or null
//	content/fetch/node   record of a location
//	content/fetch/children records of the direct children of a location
//	content/fetch/subtree records of every location below a location
//	file/realpath        absolute path of an existing file
//	expr/eval            value of an expression
package handlers

import (
	"fmt"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
	"github.com/aretw0/strata/pkg/location"
	"github.com/aretw0/strata/pkg/macro"
)

// Deps are the collaborators of the built-in handlers.
type Deps struct {
	Parser    *document.Parser
	Repo      core.Repository
	Locations *location.Resolver
}

// Register adds the built-in handlers to r.
func Register(r *macro.Resolver, deps Deps) error {
	if deps.Parser == nil {
		deps.Parser = &document.Parser{}
	}
	regs := []macro.Registration{
		{Pattern: "include", Handler: &Include{Parser: deps.Parser, Macros: r}},
		{Pattern: "file/realpath", Handler: RealPath{}},
		{Pattern: "expr/eval", Handler: Eval{}},
	}
	if deps.Locations != nil {
		locate := &Locate{Locations: deps.Locations}
		regs = append(regs,
			macro.Registration{Pattern: "content/locate", Handler: locate},
			macro.Registration{Pattern: "content/locate/*", Handler: locate},
		)
	}
	if deps.Repo != nil && deps.Locations != nil {
		regs = append(regs, macro.Registration{Pattern: "content/fetch/*", Handler: &Fetch{Repo: deps.Repo, Locations: deps.Locations}})
	}
	for _, reg := range regs {
		if err := r.Register(reg.Pattern, reg.Handler); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, keys ...string) (string, error) {
	for _, k := range keys {
		v, ok := args[k]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("argument %q must be a string, got %T", k, v)
		}
		return s, nil
	}
	return "", fmt.Errorf("missing argument %q", keys[0])
}
