// Package graph turns one workflow definition into an executable dependency
// graph. Each job is fanned out into one node per matrix combination (a
// "leg"); needs edges connect a node to every leg of the jobs it depends on.
// The graph is validated for cycles before execution.
package graph
