package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/dshills/docsync/pkg/types"
)

// GoAdapter extracts elements from Go source using go/ast.
//
// Mapping: the package clause is the module, type declarations are classes,
// funcs are functions and funcs with a receiver are methods. A method hangs
// off its receiver type when that type is declared in the same file and off
// the module otherwise.
type GoAdapter struct {
	opts Options
}

// NewGoAdapter creates a Go adapter
func NewGoAdapter(opts Options) *GoAdapter {
	return &GoAdapter{opts: opts}
}

// Language implements Adapter
func (a *GoAdapter) Language() string {
	return types.LangGo
}

// Parse implements Adapter
func (a *GoAdapter) Parse(path string, content []byte) *types.ParseResult {
	result := newResult(path, types.LangGo, content)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		line := 0
		if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
			line = list[0].Pos.Line
		}
		result.AddError(path, line, 0, fmt.Sprintf("syntax error: %v", err))
		return result
	}

	e := &goExtractor{
		fset:     fset,
		file:     file,
		path:     path,
		gap:      a.opts.DocGapLines,
		result:   result,
		typeKeys: make(map[string]int),
	}
	e.extract(lineCount(content))
	return result
}

type goMethod struct {
	key      int
	receiver string
}

// goExtractor walks top-level declarations of one file
type goExtractor struct {
	fset   *token.FileSet
	file   *ast.File
	path   string
	gap    int
	result *types.ParseResult

	module   int
	typeKeys map[string]int
	methods  []goMethod
	claimed  map[*ast.CommentGroup]bool
}

func (e *goExtractor) extract(lines int) {
	e.claimed = make(map[*ast.CommentGroup]bool)
	if e.file.Doc != nil {
		e.claimed[e.file.Doc] = true
	}

	e.module = e.result.Add(types.RawElement{
		Kind:      types.KindModule,
		Name:      e.file.Name.Name,
		Span:      types.Span{Path: e.path, StartLine: 1, EndLine: lines},
		Signature: "package " + e.file.Name.Name,
		Doc:       e.docBlock(e.file.Doc),
	})

	for _, decl := range e.file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				e.extractTypes(d)
			}
		}
	}

	for _, m := range e.methods {
		if parent, ok := e.typeKeys[m.receiver]; ok {
			e.result.Link(m.key, parent)
			continue
		}
		// Receiver declared in another file: keep the name unique per file
		e.result.Elements[m.key].Name = m.receiver + "." + e.result.Elements[m.key].Name
		e.result.Link(m.key, e.module)
	}
}

// extractFunction extracts function and method declarations
func (e *goExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	el := types.RawElement{
		Name:      funcDecl.Name.Name,
		Span:      e.span(funcDecl.Pos(), funcDecl.End()),
		Signature: e.functionSignature(funcDecl),
		Doc:       e.docFor(funcDecl.Doc, funcDecl.Pos()),
	}

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		el.Kind = types.KindMethod
		key := e.result.Add(el)
		e.methods = append(e.methods, goMethod{key: key, receiver: receiverType(funcDecl.Recv.List[0].Type)})
		return
	}

	el.Kind = types.KindFunction
	key := e.result.Add(el)
	e.result.Link(key, e.module)
}

// extractTypes extracts every type spec of a type declaration as a class
func (e *goExtractor) extractTypes(genDecl *ast.GenDecl) {
	for _, spec := range genDecl.Specs {
		typeSpec, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}

		start, doc := typeSpec.Pos(), typeSpec.Doc
		if !genDecl.Lparen.IsValid() {
			// Ungrouped declaration: the doc sits on the GenDecl
			start, doc = genDecl.Pos(), genDecl.Doc
		}

		key := e.result.Add(types.RawElement{
			Kind:      types.KindClass,
			Name:      typeSpec.Name.Name,
			Span:      e.span(start, typeSpec.End()),
			Signature: e.typeSignature(typeSpec),
			Doc:       e.docFor(doc, start),
		})
		e.result.Link(key, e.module)
		e.typeKeys[typeSpec.Name.Name] = key
	}
}

// docFor returns the attached doc comment, or a nearby comment group when the
// configured gap allows blank lines between comment and declaration.
func (e *goExtractor) docFor(doc *ast.CommentGroup, declPos token.Pos) *types.DocBlock {
	if doc != nil {
		e.claimed[doc] = true
		return e.docBlock(doc)
	}
	if e.gap == 0 {
		return nil
	}

	declLine := e.fset.Position(declPos).Line
	var candidate *ast.CommentGroup
	for _, cg := range e.file.Comments {
		if cg.End() >= declPos {
			break
		}
		candidate = cg
	}
	if candidate == nil || e.claimed[candidate] {
		return nil
	}

	endLine := e.fset.Position(candidate.End()).Line
	if e.gap >= 0 && declLine-endLine-1 > e.gap {
		return nil
	}
	// Something other than blank lines between comment and declaration
	for _, decl := range e.file.Decls {
		if decl.End() > candidate.End() && decl.End() < declPos {
			return nil
		}
	}
	if e.fset.Position(candidate.Pos()).Column != 1 {
		return nil
	}

	e.claimed[candidate] = true
	return e.docBlock(candidate)
}

func (e *goExtractor) docBlock(doc *ast.CommentGroup) *types.DocBlock {
	if doc == nil {
		return nil
	}
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return nil
	}
	return &types.DocBlock{
		Text: text,
		Span: e.span(doc.Pos(), doc.End()),
	}
}

func (e *goExtractor) span(start, end token.Pos) types.Span {
	s := e.fset.Position(start)
	en := e.fset.Position(end)
	return types.Span{
		Path:      e.path,
		StartLine: s.Line,
		EndLine:   en.Line,
		StartByte: s.Offset,
		EndByte:   en.Offset,
	}
}

// receiverType extracts the receiver base type name from a method
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.ParenExpr:
		return receiverType(t.X)
	}
	return ""
}

// functionSignature builds a function signature string
func (e *goExtractor) functionSignature(funcDecl *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")

	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(funcDecl.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(funcDecl.Name.Name)

	sig.WriteString("(")
	if funcDecl.Type.Params != nil {
		sig.WriteString(fieldListToString(funcDecl.Type.Params))
	}
	sig.WriteString(")")

	if funcDecl.Type.Results != nil {
		results := fieldListToString(funcDecl.Type.Results)
		if results != "" {
			if funcDecl.Type.Results.NumFields() > 1 || len(funcDecl.Type.Results.List[0].Names) > 0 {
				sig.WriteString(" (")
				sig.WriteString(results)
				sig.WriteString(")")
			} else {
				sig.WriteString(" ")
				sig.WriteString(results)
			}
		}
	}

	return sig.String()
}

// typeSignature builds a one-line summary of a type declaration
func (e *goExtractor) typeSignature(typeSpec *ast.TypeSpec) string {
	name := typeSpec.Name.Name
	switch t := typeSpec.Type.(type) {
	case *ast.StructType:
		fields := 0
		if t.Fields != nil {
			fields = t.Fields.NumFields()
		}
		return fmt.Sprintf("type %s struct { ... } // %d fields", name, fields)
	case *ast.InterfaceType:
		methods := 0
		if t.Methods != nil {
			methods = t.Methods.NumFields()
		}
		return fmt.Sprintf("type %s interface { ... } // %d methods", name, methods)
	default:
		if typeSpec.Assign.IsValid() {
			return fmt.Sprintf("type %s = %s", name, exprToString(typeSpec.Type))
		}
		return fmt.Sprintf("type %s %s", name, exprToString(typeSpec.Type))
	}
}

// fieldListToString converts a field list to a string representation
func fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}

	return strings.Join(parts, ", ")
}

// exprToString converts an expression to a string representation
func exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		if t.Len != nil {
			return "[" + exprToString(t.Len) + "]" + exprToString(t.Elt)
		}
		return "[]" + exprToString(t.Elt)
	case *ast.BasicLit:
		return t.Value
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{...}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	case *ast.IndexListExpr:
		params := make([]string, 0, len(t.Indices))
		for _, idx := range t.Indices {
			params = append(params, exprToString(idx))
		}
		return exprToString(t.X) + "[" + strings.Join(params, ", ") + "]"
	default:
		return "..."
	}
}
