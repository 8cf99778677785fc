package config

import "fmt"

// Validate checks the structural integrity of every workflow in the model:
// unique job names, resolvable needs references, non-empty matrix axes, and
// exactly one of run/uses per step. It returns the first problem found, named
// by workflow element.
func (m *Model) Validate() error {
	if len(m.Workflows) == 0 {
		return fmt.Errorf("no workflows defined")
	}

	seen := make(map[string]bool)
	for _, wf := range m.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflow with empty name")
		}
		if seen[wf.Name] {
			return fmt.Errorf("duplicate workflow name %q", wf.Name)
		}
		seen[wf.Name] = true

		if wf.On.Push == nil && wf.On.PullRequest == nil {
			return fmt.Errorf("workflow %q declares no triggers", wf.Name)
		}
		if err := wf.validateJobs(); err != nil {
			return fmt.Errorf("workflow %q: %w", wf.Name, err)
		}
	}
	return nil
}

func (w *Workflow) validateJobs() error {
	if len(w.Jobs) == 0 {
		return fmt.Errorf("no jobs defined")
	}

	names := make(map[string]bool, len(w.Jobs))
	for _, job := range w.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job with empty name")
		}
		if names[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		names[job.Name] = true
	}

	for _, job := range w.Jobs {
		for _, need := range job.Needs {
			if !names[need] {
				return fmt.Errorf("job %q needs unknown job %q", job.Name, need)
			}
		}
		if job.Strategy != nil {
			for axis, values := range job.Strategy.Matrix {
				if len(values) == 0 {
					return fmt.Errorf("job %q: matrix axis %q has no values", job.Name, axis)
				}
			}
		}
		if len(job.Steps) == 0 {
			return fmt.Errorf("job %q has no steps", job.Name)
		}
		for i, step := range job.Steps {
			if (step.Run == "") == (step.Uses == "") {
				return fmt.Errorf("job %q step %d: exactly one of run or uses must be set", job.Name, i)
			}
			if step.Uses == "" && len(step.With) > 0 {
				return fmt.Errorf("job %q step %d: with arguments are only valid on uses steps", job.Name, i)
			}
		}
	}
	return nil
}
