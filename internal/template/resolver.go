// Package template implements the `{{id.key}}` credential-reference
// grammar: parsing, default-key selection, and substitution against a
// credential source supplied by the Store.
package template

import (
	"context"
	"regexp"

	"github.com/yujiajie1988/hive/pkg/credential"
)

// referencePattern matches {{<id>[.<key>]}} where id and key are each a
// non-empty run of [A-Za-z0-9_].
var referencePattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)(?:\.([A-Za-z0-9_]+))?\}\}`)

// Reference is a single parsed {{id.key}} (or {{id}}) occurrence.
type Reference struct {
	ID  string
	Key string // empty means "use the default key"
}

// Getter fetches the live credential for an id, through whatever caching
// and refresh policy the Store applies. It returns a *credential.NotFoundError
// when the id is unknown.
type Getter interface {
	Get(ctx context.Context, id string) (*credential.Object, error)
}

// Resolver substitutes {{id.key}} references in template strings against a
// Getter. It holds no state of its own beyond the Getter reference, so a
// single Resolver is safe to share across goroutines.
type Resolver struct {
	getter Getter
}

// New builds a Resolver backed by the given credential Getter.
func New(getter Getter) *Resolver {
	return &Resolver{getter: getter}
}

// HasTemplates reports whether the pattern matches anywhere in text.
func HasTemplates(text string) bool {
	return referencePattern.MatchString(text)
}

// ExtractReferences returns every {{id.key}} reference in text, in order
// of appearance, without resolving them. Used for static validation of
// usage specs.
func ExtractReferences(text string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{ID: m[1], Key: m[2]})
	}
	return refs
}

// Resolve replaces each {{id.key}} reference in template with its live
// secret value. When failOnMissing is true, a reference to an unknown
// credential fails with *credential.NotFoundError; otherwise the reference
// text is left untouched. A reference to a present credential's absent key
// always fails with *credential.KeyNotFoundError, regardless of
// failOnMissing — key absence is never silently tolerated.
//
// All references to the same credential id within one Resolve call observe
// the same snapshot, fetched at most once per id, so concurrent refreshes
// elsewhere cannot produce inconsistent substitutions within a single call.
func (r *Resolver) Resolve(ctx context.Context, tmpl string, failOnMissing bool) (string, error) {
	snapshot := make(map[string]*credential.Object)

	var firstErr error
	result := referencePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := referencePattern.FindStringSubmatch(match)
		id, key := sub[1], sub[2]

		obj, ok := snapshot[id]
		if !ok {
			fetched, err := r.getter.Get(ctx, id)
			if err != nil {
				if !failOnMissing && credential.IsNotFound(err) {
					snapshot[id] = nil
					return match
				}
				firstErr = err
				return match
			}
			snapshot[id] = fetched
			obj = fetched
		}
		if obj == nil {
			// Previously resolved as "missing, tolerated".
			return match
		}

		var k credential.Key
		var found bool
		if key == "" {
			k, found = obj.DefaultKey()
		} else {
			k, found = obj.Key(key)
		}
		if !found {
			keyName := key
			if keyName == "" {
				keyName = "<default>"
			}
			firstErr = &credential.KeyNotFoundError{ID: id, Key: keyName}
			return match
		}

		return k.Value.Reveal()
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// ResolveHeaders applies Resolve to every value in a map, preserving keys.
// It fails on the first reference error, matching Resolve's fail_on_missing
// semantics for every value.
func (r *Resolver) ResolveHeaders(ctx context.Context, headers map[string]string, failOnMissing bool) (map[string]string, error) {
	out := make(map[string]string, len(headers))
	for name, tmpl := range headers {
		resolved, err := r.Resolve(ctx, tmpl, failOnMissing)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}
