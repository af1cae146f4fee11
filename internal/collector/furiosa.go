//go:build linux

// FuriosaAI RNGD reader (spec section 4.2): maps the vendor CLI onto the
// Gpu sample shape with kind=NPU.
package collector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// FuriosaReader implements contracts.DeviceReader.
type FuriosaReader struct {
	logger *zap.Logger
}

// NewFuriosaReader creates the Furiosa reader.
func NewFuriosaReader(logger *zap.Logger) *FuriosaReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FuriosaReader{logger: logger}
}

func (r *FuriosaReader) Name() string { return "furiosa" }

func (r *FuriosaReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	out, err := RunTool(ctx, r.Name(), "furiosa-smi", "info", "--format=csv")
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
			Name:             "FuriosaAI RNGD",
			Kind:             model.KindNPU,
			Index:            idx,
			UtilizationPct:   ClampPct(ParseFloatOr(fields[1], 0)),
			PowerW:           ParseFloatOr(fields[2], 0),
			TemperatureC:     tempPtr(ParseFloatOr(fields[3], -1)),
		}
		sample.Clamp()
		samples = append(samples, model.DeviceSample{Gpu: &sample})
	}
	return samples, nil
}

func tempPtr(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

func (r *FuriosaReader) IsAvailable() bool {
	_, err := RunTool(context.Background(), r.Name(), "furiosa-smi", "version")
	return err == nil
}
