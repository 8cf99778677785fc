// Package hcl implements the HCL workflow loader. It discovers .hcl files
// under the configured paths, decodes their workflow blocks, and translates
// them into the format-agnostic config model.
//
// Matrix and env interpolation happens per leg at run time, not at load
// time, so workflow files write templates with the HCL escape: $${matrix.os}
// decodes to the literal ${matrix.os} and is evaluated once the leg's matrix
// values are known.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/fsutil"
)

// Extension is the file suffix handled by this loader.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file found under the given paths and merges the
// workflows they define into a single model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, path := range paths {
		files, err := fsutil.FindFilesByExtensions(path, Extension)
		if err != nil {
			return nil, err
		}
		logger.Debug("Discovered HCL workflow files.", "path", path, "count", len(files))

		for _, file := range files {
			hclFile, diags := parser.ParseHCLFile(file)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
			}

			var root fileRoot
			if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
				return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
			}

			for _, wf := range root.Workflows {
				translated, err := translateWorkflow(wf)
				if err != nil {
					return nil, fmt.Errorf("file %s: %w", file, err)
				}
				model.Workflows = append(model.Workflows, translated)
			}
		}
	}

	logger.Debug("HCL loading complete.", "workflow_count", len(model.Workflows))
	return model, nil
}
