package storage

import (
	"context"
	"fmt"

	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// FabricState is a Backend over a chaincode stub's world state. A Fabric
// transaction commits all of its PutState calls together or not at all, so
// Apply is atomic once the peer commits. GetState does not see writes made
// earlier in the same transaction.
type FabricState struct {
	stub shim.ChaincodeStubInterface
}

// NewFabricState binds the backend to one transaction's stub.
func NewFabricState(stub shim.ChaincodeStubInterface) *FabricState {
	return &FabricState{stub: stub}
}

// Get implements Backend.
func (f *FabricState) Get(_ context.Context, key string) ([]byte, error) {
	value, err := f.stub.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read from world state: %w", err)
	}
	if len(value) == 0 {
		return nil, nil
	}
	return value, nil
}

// Apply implements Backend. Create-only checks run before any PutState.
func (f *FabricState) Apply(_ context.Context, batch *Batch) error {
	for _, op := range batch.Ops() {
		if !op.Create {
			continue
		}
		existing, err := f.stub.GetState(op.Key)
		if err != nil {
			return fmt.Errorf("failed to read from world state: %w", err)
		}
		if len(existing) > 0 {
			return ErrKeyExists
		}
	}

	for _, op := range batch.Ops() {
		if err := f.stub.PutState(op.Key, op.Value); err != nil {
			return fmt.Errorf("failed to put %s: %w", op.Key, err)
		}
	}
	return nil
}

// Close implements Backend. The stub is owned by the peer.
func (f *FabricState) Close() error {
	return nil
}
