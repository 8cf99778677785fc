package hcl

// File-level schema structs for gohcl decoding. These mirror the workflow
// surface exactly as written in .hcl files; translate.go converts them into
// the agnostic config model.

type fileRoot struct {
	Workflows []*workflowBlock `hcl:"workflow,block"`
}

type workflowBlock struct {
	Name string            `hcl:"name,label"`
	On   *onBlock          `hcl:"on,block"`
	Env  map[string]string `hcl:"env,optional"`
	Jobs []*jobBlock       `hcl:"job,block"`
}

type onBlock struct {
	Push        *branchesBlock `hcl:"push,block"`
	PullRequest *branchesBlock `hcl:"pull_request,block"`
}

type branchesBlock struct {
	Branches []string `hcl:"branches,optional"`
}

type jobBlock struct {
	Name     string         `hcl:"name,label"`
	RunsOn   string         `hcl:"runs_on"`
	Needs    []string       `hcl:"needs,optional"`
	Strategy *strategyBlock `hcl:"strategy,block"`
	Steps    []*stepBlock   `hcl:"step,block"`
}

type strategyBlock struct {
	Matrix   map[string][]string `hcl:"matrix,optional"`
	FailFast *bool               `hcl:"fail_fast,optional"`
}

type stepBlock struct {
	Name string            `hcl:"name,label"`
	Run  string            `hcl:"run,optional"`
	Uses string            `hcl:"uses,optional"`
	With map[string]string `hcl:"with,optional"`
}
