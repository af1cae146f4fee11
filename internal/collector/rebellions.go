//go:build linux

// Rebellions ATOM NPU reader (spec section 4.2): maps the vendor CLI onto
// the Gpu sample shape with kind=NPU.
package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// RebellionsReader implements contracts.DeviceReader.
type RebellionsReader struct {
	logger *zap.Logger
}

// NewRebellionsReader creates the Rebellions reader.
func NewRebellionsReader(logger *zap.Logger) *RebellionsReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RebellionsReader{logger: logger}
}

func (r *RebellionsReader) Name() string { return "rebellions" }

func (r *RebellionsReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	out, err := RunTool(ctx, r.Name(), "rbln-stat", "--format=csv")
	if err != nil {
		return nil, err
	}

	var samples []model.DeviceSample
	for idx, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			continue
		}
		sample := model.GpuSample{
			UUID:             naOr(fields[0]),
			Name:             "Rebellions ATOM",
			Kind:             model.KindNPU,
			Index:            idx,
			UtilizationPct:   ClampPct(ParseFloatOr(fields[1], 0)),
			MemoryUsedBytes:  ParseUintBytesOr(fields[2], 0) * 1024 * 1024,
			MemoryTotalBytes: ParseUintBytesOr(fields[3], 0) * 1024 * 1024,
		}
		sample.Clamp()
		samples = append(samples, model.DeviceSample{Gpu: &sample})
	}
	return samples, nil
}

func (r *RebellionsReader) IsAvailable() bool {
	_, err := RunTool(context.Background(), r.Name(), "rbln-stat", "--version")
	return err == nil
}
