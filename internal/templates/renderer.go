// Package templates implements message rendering for the notification
// pipeline. Rendering is pure: the same (template id, variables) pair always
// yields the same output, which is what makes dedup fingerprints over rendered
// content meaningful.
package templates

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"herald/internal/types"
)

// compiled pairs a template declaration with its parsed subject and body.
type compiled struct {
	decl    types.Template
	subject *template.Template
	body    *template.Template
}

// Renderer resolves template ids to parsed templates and renders them against
// event data. All templates are parsed once at construction; a parse failure
// is a configuration error and the process refuses to start.
type Renderer struct {
	templates map[string]*compiled
	order     []string
}

// NewRenderer parses the given template declarations. Duplicate ids and
// malformed template syntax are configuration errors.
func NewRenderer(decls []types.Template) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*compiled, len(decls))}

	for _, decl := range decls {
		if _, exists := r.templates[decl.ID]; exists {
			return nil, types.NewAppError(types.ErrCodeConfigDuplicateTemplate,
				fmt.Sprintf("template %q registered twice", decl.ID), nil)
		}

		subject, err := template.New(decl.ID+":subject").Option("missingkey=error").Parse(decl.Subject)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeConfigInvalidTemplate,
				fmt.Sprintf("template %q: invalid subject", decl.ID), err)
		}
		body, err := template.New(decl.ID+":body").Option("missingkey=error").Parse(decl.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeConfigInvalidTemplate,
				fmt.Sprintf("template %q: invalid body", decl.ID), err)
		}

		r.templates[decl.ID] = &compiled{decl: decl, subject: subject, body: body}
		r.order = append(r.order, decl.ID)
	}

	return r, nil
}

// Has reports whether a template id resolves. Used by the notification
// registry to validate definitions at registration time.
func (r *Renderer) Has(id string) bool {
	_, ok := r.templates[id]
	return ok
}

// List returns every template declaration in registration order.
func (r *Renderer) List() []types.Template {
	out := make([]types.Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.templates[id].decl)
	}
	return out
}

// Render resolves the template and renders subject and body against the
// variable mapping. Before execution every declared variable is checked
// against the mapping; unresolved names are reported together so the caller
// sees the full shortfall at once rather than one variable per retry.
func (r *Renderer) Render(id string, vars map[string]any) (types.RenderedMessage, error) {
	c, ok := r.templates[id]
	if !ok {
		return types.RenderedMessage{}, types.NewAppError(types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("template %q not found", id), nil)
	}

	if missing := missingVariables(c.decl.Variables, vars); len(missing) > 0 {
		return types.RenderedMessage{}, types.NewAppErrorWithDetails(
			types.ErrCodeRenderMissingVariable,
			fmt.Sprintf("template %q: missing variables: %s", id, strings.Join(missing, ", ")),
			nil,
			map[string]any{"missing": missing},
		)
	}

	var subject, body strings.Builder
	if err := c.subject.Execute(&subject, vars); err != nil {
		return types.RenderedMessage{}, types.NewAppError(types.ErrCodeRenderFailure,
			fmt.Sprintf("template %q: subject rendering failed", id), err)
	}
	if err := c.body.Execute(&body, vars); err != nil {
		return types.RenderedMessage{}, types.NewAppError(types.ErrCodeRenderFailure,
			fmt.Sprintf("template %q: body rendering failed", id), err)
	}

	return types.RenderedMessage{
		Subject: subject.String(),
		Body:    body.String(),
	}, nil
}

// missingVariables returns the declared names absent from vars, sorted for
// deterministic error messages.
func missingVariables(declared []string, vars map[string]any) []string {
	var missing []string
	for _, name := range declared {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
