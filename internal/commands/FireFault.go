package commands

import (
	"context"
	"fmt"

	"github.com/The127/ioc"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/services/kv"
	"github.com/the127/resumable/internal/services/locking"
	"github.com/the127/resumable/internal/utils/instructions"
)

// FireFault decides whether an injected fault triggers. Each instruction
// fires once per target, e.g. once per object generation.
type FireFault struct {
	Target      string
	Instruction instructions.Instruction
}

type FireFaultResponse struct {
	Fire bool
}

func HandleFireFault(ctx context.Context, command FireFault) (*FireFaultResponse, error) {
	scope := middlewares.GetScope(ctx)
	kvStore := ioc.GetDependency[kv.Store](scope)
	locks := ioc.GetDependency[locking.Service](scope)

	key := fmt.Sprintf("fired_fault:%s:%s", command.Target, command.Instruction)

	unlock, err := locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("locking fault: %w", err)
	}
	defer unlock()

	_, fired, err := kvStore.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get fault state: %w", err)
	}
	if fired {
		return &FireFaultResponse{Fire: false}, nil
	}

	err = kvStore.Set(ctx, key, "fired")
	if err != nil {
		return nil, fmt.Errorf("failed to set fault state: %w", err)
	}

	return &FireFaultResponse{Fire: true}, nil
}
