// Command nosetenv runs the nosetenv analyzer, e.g.
//
//	go run ./cmd/nosetenv ../../...
package main

import (
	"github.com/nimbleforge/forge/tools/linters/nosetenv"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(nosetenv.Analyzer)
}
