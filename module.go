package nyx

import (
	"os"
	"path/filepath"
	"strings"
)

// ImportLoader resolves an import path to a canonical filesystem path and
// reads its content, mirroring the teacher's RelativeImportLoader /
// InMemoryImportLoader pair (grammar_import_loaders.go) so the module
// system can be pointed at either the real filesystem or a test fixture
// set without touching the resolution algorithm itself.
type ImportLoader interface {
	GetPath(importPath, parentPath string) (string, error)
	GetContent(path string) ([]byte, error)
}

// RelativeImportLoader resolves an import path relative to the importing
// file's directory first, falling back to each entry of packagePaths
// (populated from the NYX_PACKAGES environment variable, spec.md §6) —
// the teacher's loader only ever had the relative branch since grammar
// files don't have a package cache to fall back to.
type RelativeImportLoader struct {
	packagePaths []string
}

func NewRelativeImportLoader(packagePaths []string) *RelativeImportLoader {
	return &RelativeImportLoader{packagePaths: packagePaths}
}

func (l *RelativeImportLoader) GetPath(importPath, parentPath string) (string, error) {
	if importPath == parentPath {
		return importPath, nil
	}
	candidate := resolveRelative(importPath, parentPath)
	if fileExists(candidate) {
		return candidate, nil
	}
	for _, base := range l.packagePaths {
		p := filepath.Join(base, importPath)
		if !strings.HasSuffix(p, ".nyx") {
			p += ".nyx"
		}
		if fileExists(p) {
			return p, nil
		}
	}
	return candidate, nil
}

func resolveRelative(importPath, parentPath string) string {
	p := importPath
	if !strings.HasSuffix(p, ".nyx") {
		p += ".nyx"
	}
	return filepath.Join(filepath.Dir(parentPath), p)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (l *RelativeImportLoader) GetContent(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// InMemoryImportLoader is the test-fixture equivalent of the teacher's
// InMemoryImportLoader: a closed set of named sources with no filesystem
// access, used by module_test.go to exercise import/export/cycle
// semantics deterministically.
type InMemoryImportLoader struct {
	files map[string][]byte
}

func NewInMemoryImportLoader() *InMemoryImportLoader {
	return &InMemoryImportLoader{files: map[string][]byte{}}
}

func (l *InMemoryImportLoader) Add(path string, content string) {
	l.files[path] = []byte(content)
}

func (l *InMemoryImportLoader) GetPath(importPath, parentPath string) (string, error) {
	if importPath == parentPath {
		return importPath, nil
	}
	return importPath, nil
}

func (l *InMemoryImportLoader) GetContent(path string) ([]byte, error) {
	b, ok := l.files[path]
	if !ok {
		return nil, newModuleError(path, Span{}, "module not found: %s", path)
	}
	return b, nil
}

// ModuleRegistry is the path -> loaded module table spec.md §4.7
// describes, driving the four-state module lifecycle (UNLOADED ->
// LOADING -> LOADED | FAILED) and the partial-export-table behavior a
// detected import cycle needs.
type ModuleRegistry struct {
	loader   ImportLoader
	cfg      *Config
	registry *InterfaceRegistry

	programs map[string]*Program
	order    []string
}

func NewModuleRegistry(loader ImportLoader, cfg *Config, registry *InterfaceRegistry) *ModuleRegistry {
	return &ModuleRegistry{
		loader:   loader,
		cfg:      cfg,
		registry: registry,
		programs: make(map[string]*Program),
	}
}

// Resolve loads (or returns the already-loading/-loaded) Program for
// importPath relative to parentPath. When a module hasn't been loaded
// yet, it compiles the source and runs its top-level synchronously on
// vm before returning — spec.md §4.7's "the VM synchronously compiles
// and executes it to populate its export table, then proceeds."
//
// A cycle (A imports B while B imports A, still LOADING) returns the
// partially-populated Program as-is: named exports bound before the
// cycle point are already in Exports; reading one of the rest is a
// missing-property runtime error until the defining EXPORT/EXPORT_VALUE
// instruction in A actually runs.
func (r *ModuleRegistry) Resolve(vm *VM, importPath, parentPath string) (*Program, error) {
	path, err := r.loader.GetPath(importPath, parentPath)
	if err != nil {
		return nil, newModuleError(importPath, Span{}, "%s", err.Error())
	}
	if p, ok := r.programs[path]; ok {
		if p.State == ModuleFailed {
			return nil, newModuleError(path, Span{}, "module previously failed to load: %s", path)
		}
		p.Retain()
		return p, nil
	}

	src, err := r.loader.GetContent(path)
	if err != nil {
		return nil, newModuleError(path, Span{}, "%s", err.Error())
	}

	program, errs := Compile(path, src, r.cfg, r.registry)
	if program == nil {
		return nil, moduleCompileError(path, errs)
	}
	program.State = ModuleLoading
	r.programs[path] = program
	r.order = append(r.order, path)

	if hasFatal(errs) {
		program.State = ModuleFailed
		return nil, moduleCompileError(path, errs)
	}

	if err := vm.runProgramToCompletion(program); err != nil {
		program.State = ModuleFailed
		return nil, err
	}
	program.State = ModuleLoaded
	// The registry's own reference is the one NewProgram created; the
	// importer takes its own, same as the cached-hit path above.
	program.Retain()
	return program, nil
}

func hasFatal(errs []*NyxError) bool {
	for _, e := range errs {
		if e.Kind == KindLexError || e.Kind == KindParseError {
			return true
		}
	}
	return false
}

func moduleCompileError(path string, errs []*NyxError) error {
	if len(errs) == 0 {
		return newModuleError(path, Span{}, "module failed to compile: %s", path)
	}
	return errs[0]
}

// Programs exposes the loaded-module set for gc.go's root walk
// (spec.md §4.6: "module import map" is a GC root).
func (r *ModuleRegistry) Programs() map[string]*Program { return r.programs }
