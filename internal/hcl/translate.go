package hcl

import (
	"fmt"

	"github.com/pipewright/pipewright/internal/config"
)

// translateWorkflow converts a decoded HCL workflow block into the agnostic model.
func translateWorkflow(b *workflowBlock) (*config.Workflow, error) {
	if b.On == nil {
		return nil, fmt.Errorf("workflow %q: missing on block", b.Name)
	}

	wf := &config.Workflow{
		Name: b.Name,
		On: config.Triggers{
			Push:        translateBranches(b.On.Push),
			PullRequest: translateBranches(b.On.PullRequest),
		},
		Env: b.Env,
	}

	for _, j := range b.Jobs {
		wf.Jobs = append(wf.Jobs, translateJob(j))
	}
	return wf, nil
}

func translateBranches(b *branchesBlock) *config.BranchFilter {
	if b == nil {
		return nil
	}
	return &config.BranchFilter{Branches: b.Branches}
}

func translateJob(b *jobBlock) *config.Job {
	job := &config.Job{
		Name:   b.Name,
		RunsOn: b.RunsOn,
		Needs:  b.Needs,
	}
	if b.Strategy != nil {
		job.Strategy = &config.Strategy{Matrix: b.Strategy.Matrix}
		if b.Strategy.FailFast != nil {
			job.Strategy.FailFast = *b.Strategy.FailFast
		}
	}
	for _, s := range b.Steps {
		job.Steps = append(job.Steps, &config.Step{
			Name: s.Name,
			Run:  s.Run,
			Uses: s.Uses,
			With: s.With,
		})
	}
	return job
}
