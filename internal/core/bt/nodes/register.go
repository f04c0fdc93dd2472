// Package nodes provides the stock behavior tree node kinds.
package nodes

import (
	"errors"

	"github.com/zeusync/npcbrain/internal/core/bt"
)

// RegisterBuiltins registers every stock kind under its type name.
func RegisterBuiltins(r *bt.Registry) error {
	return errors.Join(
		bt.RegisterKind[Sequence](r, "Sequence"),
		bt.RegisterKind[Selector](r, "Selector"),
		bt.RegisterKind[Condition](r, "Condition"),
		bt.RegisterKind[Inverter](r, "Inverter"),
		bt.RegisterKind[Succeeder](r, "Succeeder"),
		bt.RegisterKind[Wait](r, "Wait"),
		bt.RegisterKind[SetVar](r, "SetVar"),
		bt.RegisterKind[Log](r, "Log"),
		bt.RegisterKind[Perform](r, "Perform"),
	)
}

// NewRegistry returns a registry holding the stock kinds.
func NewRegistry() *bt.Registry {
	r := bt.NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}
