package testutil

import (
	"fmt"
	"sync/atomic"
)

// FixtureFactory hands out unique product codes and names so tests sharing a
// store never collide on the products_code_key constraint.
type FixtureFactory struct {
	seq atomic.Int64
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

// Code returns the next product code with the given prefix, e.g. P0001
func (f *FixtureFactory) Code(prefix string) string {
	return fmt.Sprintf("%s%04d", prefix, f.seq.Add(1))
}

// Name returns a readable product name for code
func (f *FixtureFactory) Name(code string) string {
	return "Test product " + code
}

// OperatorID returns a deterministic operator ID for index n
func OperatorID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}
