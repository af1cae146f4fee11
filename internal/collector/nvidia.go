// NVIDIA GPU reader (spec section 4.2). The primary path is the vendor
// management library; this pack carries no cgo NVML binding (no example
// repo imports one — see DESIGN.md), so the "library" path is represented
// by nvmlAdapter, a stub that always reports KindPlatformInit, and the
// reader falls straight through to parsing `nvidia-smi`'s CSV query
// output, which is the fully-functional path in this implementation.
package collector

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
)

// nvmlQueryFields is the CSV schema requested from nvidia-smi, in the
// order the columns are returned.
var nvmlQueryFields = []string{
	"uuid", "name", "utilization.gpu", "memory.used", "memory.total",
	"temperature.gpu", "power.draw", "clocks.sm",
	"pcie.link.gen.current", "pcie.link.width.current",
	"pstate", "clocks.max.sm", "power.limit",
}

// NvidiaReader implements contracts.DeviceReader for NVIDIA GPUs.
type NvidiaReader struct {
	logger *zap.Logger
	nvml   nvmlAdapter
}

// nvmlAdapter stands in for the vendor management library binding. Init
// always fails in this build (no cgo binding available), so Sample always
// falls through to the CLI path below.
type nvmlAdapter interface {
	Init() error
}

type unavailableNVML struct{}

func (unavailableNVML) Init() error {
	return contracts.NewReaderError(contracts.KindPlatformInit, "nvidia", errNVMLUnavailable).
		WithRemediation("install the NVIDIA management library, or rely on the nvidia-smi CLI fallback")
}

var errNVMLUnavailable = errPlatformInit("nvidia management library binding not compiled in")

type errPlatformInit string

func (e errPlatformInit) Error() string { return string(e) }

// NewNvidiaReader creates the NVIDIA reader.
func NewNvidiaReader(logger *zap.Logger) *NvidiaReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NvidiaReader{logger: logger, nvml: unavailableNVML{}}
}

func (r *NvidiaReader) Name() string { return "nvidia" }

func (r *NvidiaReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	if err := r.nvml.Init(); err != nil {
		r.logger.Debug("nvml init failed, falling back to nvidia-smi CLI", zap.Error(err))
	}
	return r.sampleCLI(ctx)
}

func (r *NvidiaReader) sampleCLI(ctx context.Context) ([]model.DeviceSample, error) {
	out, err := RunTool(ctx, r.Name(), "nvidia-smi",
		"--query-gpu="+strings.Join(nvmlQueryFields, ","),
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(out)))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, contracts.NewReaderError(contracts.KindParseError, r.Name(), err)
	}

	out2 := make([]model.DeviceSample, 0, len(records))
	for idx, rec := range records {
		if len(rec) < len(nvmlQueryFields) {
			continue
		}
		sample := model.GpuSample{
			UUID:             strings.TrimSpace(rec[0]),
			Name:             strings.TrimSpace(rec[1]),
			Kind:             model.KindGPU,
			Index:            idx,
			UtilizationPct:   ParseFloatOr(rec[2], 0),
			MemoryUsedBytes:  ParseUintBytesOr(rec[3], 0) * 1024 * 1024,
			MemoryTotalBytes: ParseUintBytesOr(rec[4], 0) * 1024 * 1024,
			PowerW:           ParseFloatOr(rec[6], 0),
			FrequencyMHz:     ParseFloatOr(rec[7], 0),
			Detail: map[string]string{
				"pcie_gen":       naOr(rec[8]),
				"pcie_width":     naOr(rec[9]),
				"pstate":         naOr(rec[10]),
				"clock_max_mhz":  naOr(rec[11]),
				"power_limit_w":  naOr(rec[12]),
			},
		}
		if tempStr := strings.TrimSpace(rec[5]); tempStr != "" && !strings.EqualFold(tempStr, "N/A") {
			if t, err := strconv.ParseFloat(tempStr, 64); err == nil {
				sample.TemperatureC = &t
			}
		}
		sample.Clamp()
		out2 = append(out2, model.DeviceSample{Gpu: &sample})
	}
	return out2, nil
}

func (r *NvidiaReader) IsAvailable() bool {
	_, err := RunTool(context.Background(), r.Name(), "nvidia-smi", "-L")
	return err == nil
}

// naOr returns "N/A" for an empty field, matching the CLI's own
// placeholder for unsupported queries on older driver/card combinations
// (spec section 4.2: "a missing value surfaces as N/A in detail rather
// than as a hard error").
func naOr(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "N/A"
	}
	return s
}
