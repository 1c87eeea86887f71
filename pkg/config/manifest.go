package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// manifestSchema constrains manifests before decoding. State values are
// closed to the three the engine understands.
const manifestSchema = `
#Entry: {
	name:   string & !=""
	state?: "present" | "latest" | "absent"
}

#Group: {
	packages:    [...#Entry]
	force?:      bool
	extra_args?: string
}

#Manifest: {
	groups: {[string]: #Group}
	update_cache?: bool
}

manifest: #Manifest
`

// ManifestParser parses and validates CUE manifests.
type ManifestParser struct {
	ctx      *cue.Context
	schema   cue.Value
	starlark *StarlarkEvaluator
	validate *validator.Validate
}

// NewManifestParser creates a parser with the built-in schema compiled.
func NewManifestParser() *ManifestParser {
	ctx := cuecontext.New()
	return &ManifestParser{
		ctx:      ctx,
		schema:   ctx.CompileString(manifestSchema),
		starlark: NewStarlarkEvaluator(30 * time.Second),
		validate: validator.New(),
	}
}

// Parse reads and unifies the given manifest files.
func (mp *ManifestParser) Parse(ctx context.Context, paths []string) (*ParsedManifest, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no manifest files provided")
	}

	var unified cue.Value
	var parseErrors []ValidationError

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
		}
		val := mp.ctx.CompileString(string(content), cue.Filename(path))
		if err := val.Err(); err != nil {
			parseErrors = append(parseErrors, convertCUEErrors(err)...)
			continue
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedManifest{
			SourceFiles: paths,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return mp.extract(unified, paths)
}

// ParseInline parses manifest content directly, without a file.
func (mp *ManifestParser) ParseInline(ctx context.Context, content string) (*ParsedManifest, error) {
	val := mp.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedManifest{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      convertCUEErrors(err),
		}, nil
	}
	return mp.extract(val, []string{"inline"})
}

// EvaluatePackages runs a Starlark script that computes manifest entries,
// merging the result into groups keyed by the script's top-level variables.
// Each exported list of strings becomes a group of present-state entries.
func (mp *ManifestParser) EvaluatePackages(ctx context.Context, script string, input map[string]interface{}) (map[string]ManifestGroup, error) {
	result, err := mp.starlark.Evaluate(ctx, script, input)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]ManifestGroup)
	for name, value := range result.Output {
		list, ok := value.([]interface{})
		if !ok {
			continue
		}
		var entries []ManifestEntry
		for _, item := range list {
			pkg, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("group %s: package names must be strings, got %T", name, item)
			}
			entries = append(entries, ManifestEntry{Name: pkg})
		}
		groups[name] = ManifestGroup{Packages: entries}
	}
	return groups, nil
}

// extract validates the unified value against the schema and decodes it.
func (mp *ManifestParser) extract(val cue.Value, sourceFiles []string) (*ParsedManifest, error) {
	parsed := &ParsedManifest{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	checked := mp.schema.Unify(val)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed, nil
	}

	manifestVal := checked.LookupPath(cue.ParsePath("manifest"))
	if !manifestVal.Exists() {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:    "manifest",
			Message: "manifest field is required",
		})
		return parsed, nil
	}

	if err := manifestVal.Decode(&parsed.Manifest); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:    "manifest",
			Message: fmt.Sprintf("failed to decode manifest: %v", err),
		})
		return parsed, nil
	}

	for name, group := range parsed.Manifest.Groups {
		for _, entry := range group.Packages {
			if err := mp.validate.Struct(entry); err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:    fmt.Sprintf("manifest.groups.%s", name),
					Message: err.Error(),
				})
			}
		}
	}

	return parsed, nil
}

// convertCUEErrors flattens CUE's error list into located validation errors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}
	return out
}
