package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/docsync/pkg/types"
)

// TemplateGenerator writes a short deterministic summary from the element's
// name, kind and hierarchy. It needs no network and is used when no LLM is
// configured.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a template generator
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate implements Generator
func (g *TemplateGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &types.GenerationError{Retryable: true, Err: err}
	}
	el := req.Element
	if el == nil {
		return "", &types.GenerationError{Err: errors.New("request has no element")}
	}

	var b strings.Builder
	switch el.Kind {
	case types.KindModule:
		fmt.Fprintf(&b, "Module %s.", el.Name)
		if s := req.Project.Summary(); s != "" {
			fmt.Fprintf(&b, " Part of %s: %s", projectName(req), s)
		}
	case types.KindClass:
		fmt.Fprintf(&b, "Class %s", el.Name)
		writeParent(&b, req)
		b.WriteString(".")
	case types.KindMethod:
		fmt.Fprintf(&b, "Method %s", el.Name)
		writeParent(&b, req)
		b.WriteString(".")
	default:
		fmt.Fprintf(&b, "Function %s", el.Name)
		writeParent(&b, req)
		b.WriteString(".")
	}

	if el.Signature != "" && el.Kind != types.KindModule {
		fmt.Fprintf(&b, "\n\nSignature: %s", el.Signature)
	}
	return b.String(), nil
}

func writeParent(b *strings.Builder, req Request) {
	n := len(req.Ancestors)
	if n == 0 {
		return
	}
	parent := req.Ancestors[n-1]
	fmt.Fprintf(b, " in %s %s", parent.Kind, parent.QualifiedName)
}

func projectName(req Request) string {
	if req.Project.Name != "" {
		return req.Project.Name
	}
	if req.Project.Title != "" {
		return req.Project.Title
	}
	return "the project"
}
