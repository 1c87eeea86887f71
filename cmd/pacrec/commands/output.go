package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pacrec/pacrec/pkg/engine"
)

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printOutcome(outcome *engine.Outcome) error {
	if jsonOutput {
		return printJSON(outcome)
	}

	status := "unchanged"
	if outcome.Changed {
		status = "changed"
	}
	if outcome.Failed {
		status = "failed"
	}
	fmt.Printf("%s: %s\n", status, outcome.Msg)

	for _, result := range outcome.Results {
		marker := " "
		if result.Changed {
			marker = "*"
		}
		fmt.Printf("  %s %-14s %-12s %v\n", marker, result.Operation, result.Backend, result.Targets)
	}
	for _, warning := range outcome.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	return nil
}

func printPlan(plan *engine.Plan, classified []engine.Classified) error {
	if jsonOutput {
		return printJSON(struct {
			Plan       *engine.Plan        `json:"plan"`
			Classified []engine.Classified `json:"classified,omitempty"`
		}{plan, classified})
	}

	fmt.Printf("plan %s: %d to install, %d to upgrade, %d to remove, %d unchanged\n",
		plan.ID,
		plan.Summary.ToInstall, plan.Summary.ToUpgrade,
		plan.Summary.ToRemove, plan.Summary.NoChange)

	for _, action := range plan.Actions {
		marker := "+"
		if action.NoOp {
			marker = "="
		}
		names := make([]string, 0, len(action.Targets))
		for _, t := range action.Targets {
			names = append(names, t.Name)
		}
		fmt.Printf("  %s %-14s %-12s %v\n", marker, action.Operation, action.Backend, names)
	}
	return nil
}
