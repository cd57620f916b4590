package eligibility

import (
	"context"
)

// Gate decides if a contractor can take work. Verification (identity, documents,
// blocked accounts) happens outside the broker, the gate only exposes the verdict.
type Gate interface {
	CanAccept(ctx context.Context, contractorID string) (bool, error)
}

// GateFunc is a helper to implement Gate with a function.
type GateFunc func(ctx context.Context, contractorID string) (bool, error)

func (f GateFunc) CanAccept(ctx context.Context, contractorID string) (bool, error) {
	return f(ctx, contractorID)
}

// AllowAll lets every contractor accept tasks.
var AllowAll = GateFunc(func(context.Context, string) (bool, error) { return true, nil })

// NewStaticGate returns a gate that only allows the verified contractors. An empty list
// allows everyone.
func NewStaticGate(verified []string) Gate {
	if len(verified) == 0 {
		return AllowAll
	}

	set := make(map[string]struct{}, len(verified))
	for _, id := range verified {
		set[id] = struct{}{}
	}

	return GateFunc(func(_ context.Context, contractorID string) (bool, error) {
		_, ok := set[contractorID]
		return ok, nil
	})
}
