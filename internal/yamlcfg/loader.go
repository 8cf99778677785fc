// Package yamlcfg implements the YAML workflow loader. It accepts
// hosting-platform-style workflow files (one workflow per file, jobs as a
// map) and translates them into the same agnostic config model the HCL
// loader produces, so existing definitions can be imported unchanged.
package yamlcfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pipewright/pipewright/internal/config"
	"github.com/pipewright/pipewright/internal/ctxlog"
	"github.com/pipewright/pipewright/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Extensions are the file suffixes handled by this loader.
var Extensions = []string{".yml", ".yaml"}

// Loader is the YAML-specific implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML workflow loader.
func NewLoader() *Loader {
	return &Loader{}
}

type yamlWorkflow struct {
	Name string            `yaml:"name"`
	On   yamlTriggers      `yaml:"on"`
	Env  map[string]string `yaml:"env"`
	Jobs map[string]*yamlJob `yaml:"jobs"`
}

type yamlTriggers struct {
	Push        *yamlBranches `yaml:"push"`
	PullRequest *yamlBranches `yaml:"pull_request"`
}

type yamlBranches struct {
	Branches []string `yaml:"branches"`
}

type yamlJob struct {
	RunsOn   string        `yaml:"runs-on"`
	Needs    []string      `yaml:"needs"`
	Strategy *yamlStrategy `yaml:"strategy"`
	Steps    []*yamlStep   `yaml:"steps"`
}

type yamlStrategy struct {
	Matrix   map[string][]string `yaml:"matrix"`
	FailFast *bool               `yaml:"fail-fast"`
}

type yamlStep struct {
	Name string            `yaml:"name"`
	Run  string            `yaml:"run"`
	Uses string            `yaml:"uses"`
	With map[string]string `yaml:"with"`
}

// Load parses every .yml/.yaml file found under the given paths. Each file
// defines exactly one workflow; a file without a name falls back to its base
// filename.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	model := &config.Model{}
	for _, path := range paths {
		files, err := fsutil.FindFilesByExtensions(path, Extensions...)
		if err != nil {
			return nil, err
		}
		logger.Debug("Discovered YAML workflow files.", "path", path, "count", len(files))

		for _, file := range files {
			wf, err := loadFile(file)
			if err != nil {
				return nil, err
			}
			model.Workflows = append(model.Workflows, wf)
		}
	}

	logger.Debug("YAML loading complete.", "workflow_count", len(model.Workflows))
	return model, nil
}

func loadFile(path string) (*config.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw yamlWorkflow
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}

	name := raw.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	wf := &config.Workflow{
		Name: name,
		On: config.Triggers{
			Push:        translateBranches(raw.On.Push),
			PullRequest: translateBranches(raw.On.PullRequest),
		},
		Env: raw.Env,
	}

	// YAML jobs are a map, so impose a stable order by name to keep graph
	// construction and reporting deterministic across runs.
	jobNames := make([]string, 0, len(raw.Jobs))
	for jobName := range raw.Jobs {
		jobNames = append(jobNames, jobName)
	}
	sort.Strings(jobNames)

	for _, jobName := range jobNames {
		wf.Jobs = append(wf.Jobs, translateJob(jobName, raw.Jobs[jobName]))
	}
	return wf, nil
}

func translateBranches(b *yamlBranches) *config.BranchFilter {
	if b == nil {
		return nil
	}
	return &config.BranchFilter{Branches: b.Branches}
}

func translateJob(name string, j *yamlJob) *config.Job {
	job := &config.Job{
		Name:   name,
		RunsOn: j.RunsOn,
		Needs:  j.Needs,
	}
	if j.Strategy != nil {
		job.Strategy = &config.Strategy{Matrix: j.Strategy.Matrix}
		if j.Strategy.FailFast != nil {
			job.Strategy.FailFast = *j.Strategy.FailFast
		}
	}
	for _, s := range j.Steps {
		job.Steps = append(job.Steps, &config.Step{
			Name: s.Name,
			Run:  s.Run,
			Uses: s.Uses,
			With: s.With,
		})
	}
	return job
}
