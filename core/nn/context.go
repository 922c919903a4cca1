package nn

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Device selects where tensor math runs
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

var (
	ErrUnsupportedDevice = errors.New("unsupported device")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// ExecContext is the execution context every layer is constructed with.
// It replaces process wide device selection and random state.
type ExecContext struct {
	Device Device
	Rand   *rand.Rand
	Logger *slog.Logger
	Tracer trace.Tracer
}

// NewExecContext creates an execution context seeded with seed.
// A nil logger discards all records and a nil tracer records nothing.
func NewExecContext(device Device, seed uint64, logger *slog.Logger, tracer trace.Tracer) (*ExecContext, error) {
	switch device {
	case DeviceCPU:
	case DeviceCUDA:
		return nil, fmt.Errorf("%w: %s, only %s is available", ErrUnsupportedDevice, device, DeviceCPU)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDevice, device)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("kgwalker")
	}

	return &ExecContext{
		Device: device,
		Rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Logger: logger,
		Tracer: tracer,
	}, nil
}
