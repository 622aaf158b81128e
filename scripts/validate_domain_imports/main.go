// Command validate_domain_imports checks that the domain package does not
// depend, directly or transitively, on any internal implementation package.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

const defaultPattern = "agentcore/pkg/domain"

var (
	exitFunc = os.Exit
	loadFunc = loadPackages
)

func main() {
	exitFunc(run(os.Args, os.Stderr, loadFunc))
}

func run(args []string, stderr io.Writer, load func(pattern string) ([]*packages.Package, error)) int {
	if len(args) == 0 {
		return 1
	}
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)
	pattern := flags.String("pattern", defaultPattern, "package pattern to check")
	if err := flags.Parse(args[1:]); err != nil {
		return 1
	}

	pkgs, err := load(*pattern)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load packages: %v\n", err)
		return 1
	}
	if len(pkgs) == 0 {
		_, _ = fmt.Fprintf(stderr, "no packages matched %q\n", *pattern)
		return 1
	}

	violations := collectInternalDeps(pkgs)
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stderr, "domain package depends on %d internal package(s):\n", len(violations))
		for _, dep := range violations {
			_, _ = fmt.Fprintf(stderr, "  %s\n", dep)
		}
		return 1
	}
	return 0
}

func loadPackages(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	return packages.Load(cfg, pattern)
}

// collectInternalDeps walks the import graph of the given roots and returns
// the sorted set of reachable import paths that cross an internal boundary.
func collectInternalDeps(roots []*packages.Package) []string {
	seen := make(map[string]bool)
	found := make(map[string]bool)
	var walk func(p *packages.Package)
	walk = func(p *packages.Package) {
		if seen[p.PkgPath] {
			return
		}
		seen[p.PkgPath] = true
		for path, dep := range p.Imports {
			if strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal") {
				found[path] = true
			}
			walk(dep)
		}
	}
	for _, p := range roots {
		walk(p)
	}
	out := make([]string, 0, len(found))
	for path := range found {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
