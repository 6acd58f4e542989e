package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/schema"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the class declarations loaded from a directory.
type LoadResult struct {
	Classes   []schema.ClassDescriptor
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads and compiles the CUE class declarations in dir.
// If mode is LoadModeFailFast, returns on the first compile error.
// If mode is LoadModeCollectAll, collects all of them.
//
// A nil result means nothing could be compiled at all.
func LoadSchema(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	classes, compileErrs := compiler.CompileClasses(value)
	result.Classes = classes

	var errs []error
	for _, ce := range compileErrs {
		errs = append(errs, convertCompileError(ce))
		if mode == LoadModeFailFast {
			return result, errs
		}
	}

	if len(result.Classes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no classes found in schema"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// BuildRegistry registers classes under root.
func BuildRegistry(classes []schema.ClassDescriptor, root string) (*schema.Registry, error) {
	var opts []schema.Option
	if root != "" {
		opts = append(opts, schema.WithRootClass(root))
	}
	reg := schema.NewRegistry(opts...)
	if err := reg.Register(classes...); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadRegistry loads the schema in dir fail-fast and registers it.
func loadRegistry(dir, root string) (*schema.Registry, *LoadResult, error) {
	result, errs := LoadSchema(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, result, errs[0]
	}
	reg, err := BuildRegistry(result.Classes, root)
	if err != nil {
		return nil, result, err
	}
	return reg, result, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDatabase    = "E008" // Database open or write failed
	ErrCodeConfig      = "E009" // Configuration error

	// Declaration errors
	ErrCodeBadDeclaration = "E010" // Malformed class declaration
	ErrCodeBadDefault     = "E011" // Default value of unsupported kind
	ErrCodeBadRelation    = "E012" // Malformed relation entry
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case hasPrefix(field, "defaults"):
		return ErrCodeBadDefault
	case hasPrefix(field, "has_one"), hasPrefix(field, "has_many"),
		hasPrefix(field, "many_many"), hasPrefix(field, "belongs_many_many"):
		return ErrCodeBadRelation
	case field == "":
		return ErrCodeGeneric
	default:
		return ErrCodeBadDeclaration
	}
}

func hasPrefix(field, prefix string) bool {
	return field == prefix || len(field) > len(prefix) && field[:len(prefix)+1] == prefix+"."
}
