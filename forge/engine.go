package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

// DefaultMaxStringTokenLength bounds generated tokens for string leaves.
const DefaultMaxStringTokenLength = 2048

// GenerateRequest is one constrained generation call.
type GenerateRequest struct {
	// Schema is a single-property sub-schema.
	Schema *schema.Node
	// Prompt is the (possibly feedback-augmented) prompt.
	Prompt string
	// MaxStringTokenLength caps tokens generated for string values.
	MaxStringTokenLength int
	// Model optionally overrides the engine's default model.
	Model string
}

// Engine produces a JSON object conforming to a sub-schema.
//
// Implementations must either return a fragment whose keys come from the
// sub-schema or an error; there is no partial output.
type Engine interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Record, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req *GenerateRequest) (*Record, error)

// Generate calls f.
func (f EngineFunc) Generate(ctx context.Context, req *GenerateRequest) (*Record, error) {
	return f(ctx, req)
}

// AcceleratorReporter is implemented by engines that know the device they
// decode on ("cuda", "rocm", "metal", "cpu", ...).
type AcceleratorReporter interface {
	Accelerator(ctx context.Context) (string, error)
}

var acceleratedDevices = map[string]bool{
	"cuda":  true,
	"gpu":   true,
	"rocm":  true,
	"metal": true,
	"mps":   true,
	"tpu":   true,
	"xpu":   true,
}

// IsAcceleratedDevice reports whether device names a hardware accelerator.
func IsAcceleratedDevice(device string) bool {
	name, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(device)), ":")
	return acceleratedDevices[name]
}

// CheckAccelerator fails with ACCELERATOR_UNAVAILABLE unless the engine
// reports an accelerated device. Engines that do not report a device fail
// the check too.
func CheckAccelerator(ctx context.Context, e Engine) error {
	reporter, ok := e.(AcceleratorReporter)
	if !ok {
		return types.NewError(types.ErrAcceleratorUnavailable, "engine does not report an accelerator")
	}
	device, err := reporter.Accelerator(ctx)
	if err != nil {
		return types.NewError(types.ErrAcceleratorUnavailable, "accelerator probe failed").WithCause(err)
	}
	if !IsAcceleratedDevice(device) {
		return types.NewError(types.ErrAcceleratorUnavailable,
			fmt.Sprintf("engine runs on %q, an accelerator is required", device))
	}
	return nil
}
