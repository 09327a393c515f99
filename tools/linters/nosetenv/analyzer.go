// Package nosetenv reports os.Setenv and (*testing.T).Setenv calls in test
// files. Tests build configuration with config.LoadFromMap so they can run
// in parallel without touching process state.
package nosetenv

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

const doc = `nosetenv: forbid os.Setenv and t.Setenv in test files

Environment variables are process-wide, so tests that set them cannot run in
parallel. Load configuration from a map with config.LoadFromMap and pass it to
constructors instead.`

var Analyzer = &analysis.Analyzer{
	Name:     "nosetenv",
	Doc:      doc,
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if !strings.HasSuffix(pass.Fset.Position(call.Pos()).Filename, "_test.go") {
			return
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Setenv" {
			return
		}

		fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
		if !ok || fn.Pkg() == nil {
			return
		}
		switch fn.Pkg().Path() {
		case "os":
			pass.Reportf(call.Pos(), "os.Setenv is forbidden in test files: build configuration with config.LoadFromMap")
		case "testing":
			pass.Reportf(call.Pos(), "t.Setenv is forbidden in test files: build configuration with config.LoadFromMap")
		}
	})
	return nil, nil
}
