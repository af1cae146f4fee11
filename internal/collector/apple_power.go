//go:build darwin

// Apple Silicon GPU/ANE reader (spec section 4.2). powermetrics is a
// long-lived, line-streaming tool, so it is run through the sampler
// manager (spec section 4.3) rather than invoked on each sample the way
// nvidia-smi is: exactly the "Apple power sampler" example the sampler
// manager's own doc comment names. While the first frame has not arrived,
// Sample returns contracts.Warming so the collection engine records
// "pending" instead of failing the whole host (spec's cold-start
// scenario).
package collector

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
	"github.com/zeroday0619/all-smi/internal/parser"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

const applePowerSamplerIdentity = "apple-power"

// appleSamplerRules is the mini-DSL table for one powermetrics text block
// (spec section 4.5). Unlike Gaudi's one-row-per-frame CSV, powermetrics
// interleaves a field's line anywhere within a blank-line-delimited
// section, so the rules are evaluated against the whole accumulated block
// rather than one line at a time.
var appleSamplerRules = []parser.Rule{
	{Name: "gpu_utilization_pct", Key: parser.MustKey(`(?i)GPU HW active residency:\s*([\d.]+)%`), Value: parser.ValueFloat},
	{Name: "ane_power_mw", Key: parser.MustKey(`(?i)ANE Power:\s*([\d.]+)\s*mW`), Value: parser.ValueFloat},
	{Name: "gpu_power_mw", Key: parser.MustKey(`(?i)GPU Power:\s*([\d.]+)\s*mW`), Value: parser.ValueFloat},
	{Name: "thermal_pressure", Key: parser.MustKey(`(?i)Current pressure level:\s*(\w+)`), Value: parser.ValueString},
}

// AppleSamplerCommand builds the powermetrics invocation used by the
// sampler manager. Factored out so the factory can register it with the
// shared sampler.Registry under one canonical identity.
func AppleSamplerCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, "powermetrics",
		"-i", "1000",
		"--samplers", "gpu_power,ane_power,thermal",
		"-n", "0"), nil
}

// AppleSamplerLineParser accumulates a powermetrics text block and, on the
// blank line that ends it, runs the block through the mini-DSL rule table
// to produce one Frame.
func AppleSamplerLineParser() sampler.LineParser {
	var block strings.Builder
	return func(line string) (map[string]string, bool, error) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if block.Len() == 0 {
				return nil, false, nil
			}
			fields := parser.ParseToolOutput([]byte(block.String()), appleSamplerRules, nil)
			block.Reset()
			return map[string]string(fields), true, nil
		}
		block.WriteString(line)
		block.WriteByte('\n')
		return nil, false, nil
	}
}

// AppleGPUReader implements contracts.DeviceReader, backed by a
// sampler.Manager running powermetrics.
type AppleGPUReader struct {
	logger  *zap.Logger
	manager *sampler.Manager
}

// NewAppleGPUReader creates the reader over an existing sampler manager
// (obtained from the shared registry so only one powermetrics process
// ever runs per host).
func NewAppleGPUReader(manager *sampler.Manager, logger *zap.Logger) *AppleGPUReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppleGPUReader{manager: manager, logger: logger}
}

func (r *AppleGPUReader) Name() string { return "apple-gpu" }

func (r *AppleGPUReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	if err := r.manager.EnsureRunning(ctx); err != nil {
		return nil, err
	}

	frame, ok := r.manager.Latest()
	if !ok {
		return nil, contracts.NewReaderError(contracts.KindWarming, r.Name(), errAppleWarming)
	}

	sample := model.GpuSample{
		UUID:           "apple-gpu-0",
		Name:           "Apple Silicon GPU",
		Kind:           model.KindGPU,
		Index:          0,
		UtilizationPct: ClampPct(ParseFloatOr(frame.Fields["gpu_utilization_pct"], 0)),
		PowerW:         ParseFloatOr(frame.Fields["gpu_power_mw"], 0) / 1000,
		Detail: map[string]string{
			"ane_power_watts":  strconv.FormatFloat(ParseFloatOr(frame.Fields["ane_power_mw"], 0)/1000, 'f', 3, 64),
			"thermal_pressure": naOr(frame.Fields["thermal_pressure"]),
		},
	}
	sample.Clamp()
	return []model.DeviceSample{{Gpu: &sample}}, nil
}

func (r *AppleGPUReader) IsAvailable() bool {
	_, err := exec.LookPath("powermetrics")
	return err == nil
}

var errAppleWarming = appleErr("apple power sampler has not produced a frame yet")

type appleErr string

func (e appleErr) Error() string { return string(e) }
