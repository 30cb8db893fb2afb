// Package codegen generates Go bindings for an operation contract: the
// metadata of every operation, typed adapters to the backend functions,
// the backend table, a mount helper and the OpenAPI document.
package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/conduit-lang/opmeta/pkg/contract"
	"github.com/conduit-lang/opmeta/pkg/opmeta"
)

// Output file names
const (
	GoFile      = "opmeta_gen.go"
	OpenAPIFile = "openapi.json"
)

const runtimeModule = "github.com/conduit-lang/opmeta"

// Options configures generation
type Options struct {
	Package string
	Title   string
	Version string
}

// Generator emits Go source for a set of operations
type Generator struct {
	buf     *bytes.Buffer
	indent  int
	imports map[string]string // import path -> alias
	aliases map[string]bool
}

// NewGenerator creates a new code generator
func NewGenerator() *Generator {
	return &Generator{buf: &bytes.Buffer{}}
}

// binding is one backend function referenced by the contract
type binding struct {
	importPath string
	fn         string
	alias      string
	adapter    string
	mode       opmeta.Invoke
	arity      int
}

// Generate returns the generated files keyed by name
func (g *Generator) Generate(ops []Operation, opts Options) (map[string]string, error) {
	if opts.Package == "" {
		opts.Package = "api"
	}
	if !token.IsIdentifier(opts.Package) {
		return nil, fmt.Errorf("invalid package name %q", opts.Package)
	}
	if opts.Title == "" {
		opts.Title = "API"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	src, err := g.GenerateSource(ops, opts.Package)
	if err != nil {
		return nil, err
	}
	doc, err := GenerateDocument(ops, opts.Title, opts.Version)
	if err != nil {
		return nil, err
	}
	return map[string]string{GoFile: src, OpenAPIFile: doc}, nil
}

// GenerateDocument renders the OpenAPI document for ops as indented JSON
func GenerateDocument(ops []Operation, title, version string) (string, error) {
	routes := make([]contract.Route, len(ops))
	for i, op := range ops {
		routes[i] = contract.Attach(op.Route, op.Meta)
	}
	data, err := json.MarshalIndent(contract.Document(title, version, routes), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}
	return string(data) + "\n", nil
}

// GenerateSource renders opmeta_gen.go for ops
func (g *Generator) GenerateSource(ops []Operation, pkg string) (string, error) {
	g.reset()

	bindings, err := g.collectBindings(ops)
	if err != nil {
		return "", err
	}
	idents := opIdents(ops)

	g.writeLine("// Code generated by opmeta. DO NOT EDIT.")
	g.writeLine("")
	g.writeLine("package %s", pkg)
	g.writeLine("")
	g.writeImports(len(bindings) > 0)

	if len(ops) > 0 {
		g.writeLine("// Operation metadata as declared in the contract")
		g.writeLine("const (")
		g.indent++
		for i, op := range ops {
			data, err := json.Marshal(op.Meta)
			if err != nil {
				return "", fmt.Errorf("%s: failed to marshal metadata: %w", op.Meta.Op, err)
			}
			g.writeLine("meta%s = `%s`", idents[i], escapeBackticks(string(data)))
		}
		g.indent--
		g.writeLine(")")
		g.writeLine("")
	}

	g.writeLine("// Routes returns every operation of the contract with its metadata attached")
	g.writeLine("func Routes() []contract.Route {")
	g.indent++
	g.writeLine("return []contract.Route{")
	g.indent++
	for i, op := range ops {
		g.writeLine("contract.Op(%q, %q, mustMeta(meta%s)),", op.Route.Method, op.Route.Path, idents[i])
	}
	g.indent--
	g.writeLine("}")
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	for _, b := range bindings {
		g.writeAdapter(b)
	}

	g.writeLine("// Backends returns the backend table for every bound operation")
	g.writeLine("func Backends() *dispatch.Backends {")
	g.indent++
	g.writeLine("b := dispatch.NewBackends()")
	for _, b := range bindings {
		g.writeLine("b.Register(%q, %q, %s)", b.importPath, b.fn, b.adapter)
	}
	g.writeLine("return b")
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	g.writeLine("// Factories lists the raw factories the runtime expects to be registered")
	g.writeLine("var Factories = []string{")
	g.indent++
	for _, name := range factories(ops) {
		g.writeLine("%q,", name)
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	g.writeLine("// Validators lists the input validators the runtime expects to be registered")
	g.writeLine("var Validators = []string{")
	g.indent++
	for _, name := range validators(ops) {
		g.writeLine("%q,", name)
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	g.writeLine("// Mount registers every operation on r")
	g.writeLine("func Mount(r chi.Router, rt *dispatch.Runtime) error {")
	g.indent++
	g.writeLine("return rt.Mount(r, Routes())")
	g.indent--
	g.writeLine("}")
	g.writeLine("")

	g.writeLine("func mustMeta(src string) *opmeta.OpMeta {")
	g.indent++
	g.writeLine("var meta opmeta.OpMeta")
	g.writeLine("if err := json.Unmarshal([]byte(src), &meta); err != nil {")
	g.indent++
	g.writeLine("panic(fmt.Sprintf(\"opmeta: invalid generated metadata: %%v\", err))")
	g.indent--
	g.writeLine("}")
	g.writeLine("return &meta")
	g.indent--
	g.writeLine("}")

	formatted, err := format.Source(g.buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to format generated code: %w", err)
	}
	return string(formatted), nil
}

// collectBindings lists the distinct backend functions in op order and
// assigns import aliases
func (g *Generator) collectBindings(ops []Operation) ([]*binding, error) {
	seen := make(map[string]*binding)
	var out []*binding
	for _, op := range ops {
		s := op.Meta.Service
		if s == nil || s.Raw {
			continue
		}
		if !token.IsIdentifier(s.Fn) || !token.IsExported(s.Fn) {
			return nil, fmt.Errorf("%s: service fn %q is not an exported Go identifier", op.Meta.Op, s.Fn)
		}
		mode := s.InvokeMode()
		arity := positionalArity(s.CallArgs)

		locator := s.Locator()
		if b, ok := seen[locator]; ok {
			if b.mode != mode {
				return nil, fmt.Errorf("%s: %s is bound with both %s and %s invocation", op.Meta.Op, locator, b.mode, mode)
			}
			if arity > b.arity {
				b.arity = arity
			}
			continue
		}

		b := &binding{
			importPath: s.ImportPath,
			fn:         s.Fn,
			alias:      g.importAlias(s.ImportPath),
			mode:       mode,
			arity:      arity,
		}
		seen[locator] = b
		out = append(out, b)
	}

	used := make(map[string]bool)
	for _, b := range out {
		name := "invoke" + exportName(b.alias) + b.fn
		for i := 2; used[name]; i++ {
			name = fmt.Sprintf("invoke%s%s%d", exportName(b.alias), b.fn, i)
		}
		used[name] = true
		b.adapter = name
	}
	return out, nil
}

func (g *Generator) writeAdapter(b *binding) {
	g.writeLine("func %s(ctx context.Context, args resolve.Args) (any, error) {", b.adapter)
	g.indent++
	if b.mode == opmeta.InvokePositional {
		params := make([]string, 0, b.arity+1)
		params = append(params, "ctx")
		for i := 0; i < b.arity; i++ {
			params = append(params, fmt.Sprintf("args.At(%d)", i))
		}
		g.writeLine("return %s.%s(%s)", b.alias, b.fn, strings.Join(params, ", "))
	} else {
		g.writeLine("return %s.%s(ctx, args.Named)", b.alias, b.fn)
	}
	g.indent--
	g.writeLine("}")
	g.writeLine("")
}

// importAlias returns a unique package alias for importPath
func (g *Generator) importAlias(importPath string) string {
	if alias, ok := g.imports[importPath]; ok {
		return alias
	}
	base := sanitizeIdent(path.Base(importPath))
	if base == "" || token.Lookup(base).IsKeyword() || reserved[base] {
		base = "svc" + base
	}
	alias := base
	for i := 2; g.aliases[alias]; i++ {
		alias = base + strconv.Itoa(i)
	}
	g.imports[importPath] = alias
	g.aliases[alias] = true
	return alias
}

// reserved names the generated file uses itself
var reserved = map[string]bool{
	"context": true, "json": true, "fmt": true, "chi": true,
	"contract": true, "dispatch": true, "opmeta": true, "resolve": true,
	"args": true, "ctx": true, "meta": true, "b": true, "r": true, "rt": true,
}

func (g *Generator) writeImports(withBackends bool) {
	g.writeLine("import (")
	g.indent++
	if withBackends {
		g.writeLine("%q", "context")
	}
	g.writeLine("%q", "encoding/json")
	g.writeLine("%q", "fmt")
	g.writeLine("")
	g.writeLine("%q", "github.com/go-chi/chi/v5")
	g.writeLine("")
	g.writeLine("%q", runtimeModule+"/pkg/contract")
	g.writeLine("%q", runtimeModule+"/pkg/dispatch")
	g.writeLine("%q", runtimeModule+"/pkg/opmeta")
	if withBackends {
		g.writeLine("%q", runtimeModule+"/pkg/resolve")
	}

	if len(g.imports) > 0 {
		paths := make([]string, 0, len(g.imports))
		for p := range g.imports {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		g.writeLine("")
		for _, p := range paths {
			g.writeLine("%s %q", g.imports[p], p)
		}
	}
	g.indent--
	g.writeLine(")")
	g.writeLine("")
}

// reset clears the generator state
func (g *Generator) reset() {
	g.buf.Reset()
	g.indent = 0
	g.imports = make(map[string]string)
	g.aliases = make(map[string]bool)
}

// writeLine writes a formatted line with proper indentation
func (g *Generator) writeLine(format string, args ...any) {
	if format == "" {
		g.buf.WriteString("\n")
		return
	}
	for i := 0; i < g.indent; i++ {
		g.buf.WriteString("\t")
	}
	if len(args) > 0 {
		fmt.Fprintf(g.buf, format, args...)
	} else {
		g.buf.WriteString(format)
	}
	g.buf.WriteString("\n")
}

// positionalArity returns the number of slots a positional binding fills
func positionalArity(args []opmeta.CallArg) int {
	n := 0
	for _, arg := range args {
		if idx, err := strconv.Atoi(arg.Name); err == nil && idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

func factories(ops []Operation) []string {
	set := make(map[string]bool)
	for _, op := range ops {
		if s := op.Meta.Service; s != nil && s.Raw && s.Factory != "" {
			set[s.Factory] = true
		}
	}
	return sortedKeys(set)
}

func validators(ops []Operation) []string {
	set := make(map[string]bool)
	for _, op := range ops {
		if s := op.Meta.Service; s != nil {
			if s.ZodBody != "" {
				set[s.ZodBody] = true
			}
			if s.ZodQuery != "" {
				set[s.ZodQuery] = true
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// opIdents maps op names to unique exported identifiers, for example
// billing.subscribe to BillingSubscribe
func opIdents(ops []Operation) []string {
	used := make(map[string]bool, len(ops))
	out := make([]string, len(ops))
	for i, op := range ops {
		base := exportName(op.Meta.Op)
		if base == "" {
			base = "Op"
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// exportName joins the alphanumeric runs of s in title case
func exportName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "X" + out
	}
	return out
}

// sanitizeIdent lowercases s and drops characters not allowed in a package name
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "pkg" + out
	}
	return out
}

// escapeBackticks escapes backticks in a string for use in Go raw string literals
func escapeBackticks(s string) string {
	return strings.ReplaceAll(s, "`", "` + \"`\" + `")
}
