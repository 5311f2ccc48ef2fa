//go:build cgo

package methodindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"golang.org/x/sync/errgroup"

	"tracerank/internal/model"
)

var classNodeTypes = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

var methodNodeTypes = map[string]bool{
	"method_declaration":              true,
	"constructor_declaration":         true,
	"compact_constructor_declaration": true,
}

// skippedDirs are never descended into by IndexDir.
var skippedDirs = map[string]bool{
	"build":        true,
	"target":       true,
	"out":          true,
	"node_modules": true,
}

// IsAvailable reports whether the parser is compiled in.
func IsAvailable() bool { return true }

// Indexer extracts methods from Java sources. It is safe for concurrent use.
type Indexer struct {
	// Workers bounds concurrent parsing in IndexDir; 0 means GOMAXPROCS.
	Workers int
}

// NewIndexer creates an Indexer.
func NewIndexer() *Indexer {
	return &Indexer{}
}

// classScope is a class being walked. Nested, local and anonymous classes
// get the binary names the compiler gives them (Outer$Inner, Outer$1Local,
// Outer$1).
type classScope struct {
	name  string
	anon  int
	local map[string]int
}

// IndexSource extracts the methods of one compilation unit.
func (ix *Indexer) IndexSource(ctx context.Context, path string, source []byte) ([]Method, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root := tree.RootNode()
	pkg := packageName(root, source)

	var methods []Method
	var visit func(n *sitter.Node, stack []*classScope, inMethod bool)
	visitChildren := func(n *sitter.Node, stack []*classScope, inMethod bool) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i), stack, inMethod)
		}
	}

	visit = func(n *sitter.Node, stack []*classScope, inMethod bool) {
		if n == nil {
			return
		}
		switch t := n.Type(); {
		case classNodeTypes[t]:
			nameNode := n.ChildByFieldName("name")
			if nameNode == nil {
				return
			}
			name := nameNode.Content(source)
			var full string
			switch {
			case len(stack) == 0 && pkg != "":
				full = pkg + "." + name
			case len(stack) == 0:
				full = name
			case inMethod:
				parent := stack[len(stack)-1]
				parent.local[name]++
				full = parent.name + "$" + strconv.Itoa(parent.local[name]) + name
			default:
				full = stack[len(stack)-1].name + "$" + name
			}
			visitChildren(n, append(stack, &classScope{name: full, local: map[string]int{}}), false)

		case t == "object_creation_expression" || t == "enum_constant":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				if c.Type() == "class_body" && len(stack) > 0 {
					parent := stack[len(stack)-1]
					parent.anon++
					anon := &classScope{name: parent.name + "$" + strconv.Itoa(parent.anon), local: map[string]int{}}
					visitChildren(c, append(stack, anon), false)
					continue
				}
				visit(c, stack, inMethod)
			}

		case methodNodeTypes[t]:
			if len(stack) > 0 {
				if m, ok := methodOf(n, source, stack[len(stack)-1].name, path); ok {
					methods = append(methods, m)
				}
			}
			visitChildren(n, stack, true)

		case t == "static_initializer" || t == "block" && !inMethod:
			visitChildren(n, stack, true)

		default:
			visitChildren(n, stack, inMethod)
		}
	}
	visit(root, nil, false)

	SortMethods(methods)
	return methods, nil
}

func methodOf(n *sitter.Node, source []byte, className, path string) (Method, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return Method{}, false
	}
	name := nameNode.Content(source)
	if n.Type() != "method_declaration" {
		name = ConstructorName
	}
	params := ""
	if p := n.ChildByFieldName("parameters"); p != nil {
		params = strings.Join(strings.Fields(p.Content(source)), " ")
	}
	id := model.MethodID{
		ClassName:  className,
		MethodName: name,
		StartLine:  int(nameNode.StartPoint().Row) + 1,
	}
	return newMethod(id, params, path, int(n.EndPoint().Row)+1), true
}

func packageName(root *sitter.Node, source []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		if c.Type() != "package_declaration" {
			continue
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			id := c.NamedChild(j)
			if id.Type() == "scoped_identifier" || id.Type() == "identifier" {
				return id.Content(source)
			}
		}
	}
	return ""
}

// IndexFile extracts the methods of one .java file.
func (ix *Indexer) IndexFile(ctx context.Context, path string) ([]Method, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ix.IndexSource(ctx, path, source)
}

// IndexDir walks root and indexes every .java file below it, skipping
// hidden and build output directories. Paths in the result are relative to
// root with forward slashes.
func (ix *Indexer) IndexDir(ctx context.Context, root string) ([]Method, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".java") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	workers := ix.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	var all []Method
	for _, path := range files {
		g.Go(func() error {
			methods, err := ix.IndexFile(gctx, path)
			if err != nil {
				return err
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			for i := range methods {
				methods[i].Path = filepath.ToSlash(rel)
			}
			mu.Lock()
			all = append(all, methods...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	SortMethods(all)
	return all, nil
}
