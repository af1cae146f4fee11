// Intel Gaudi reader (spec section 4.2): the vendor SMI tool
// (hl-smi) is run in streaming mode through the sampler manager, the same
// pattern used for the Apple power sampler.
package collector

import (
	"context"
	"encoding/csv"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
	"github.com/zeroday0619/all-smi/internal/sampler"
)

const gaudiSamplerIdentity = "gaudi-hl-smi"

var gaudiQueryFields = []string{
	"index", "uuid", "name", "utilization.aip", "memory.used", "memory.total", "temperature.aip", "power.draw",
}

// GaudiSamplerCommand builds the hl-smi streaming invocation: one CSV line
// per card per tick, repeated on an interval, matching the generic
// LineParser contract the sampler manager expects.
func GaudiSamplerCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, "hl-smi",
		"--query-aip="+strings.Join(gaudiQueryFields, ","),
		"--format=csv,noheader,nounits",
		"-l", "1"), nil
}

// GaudiLineParser parses one hl-smi CSV row into a Frame's fields. Each
// row becomes a complete frame (unlike the Apple sampler's multi-line
// blocks), keyed by its own device index so a later reader call can
// reconstruct however many cards are present from the Store's recent
// history.
func GaudiLineParser(line string) (map[string]string, bool, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.TrimLeadingSpace = true
	rec, err := reader.Read()
	if err != nil || len(rec) < len(gaudiQueryFields) {
		return nil, false, nil
	}
	fields := make(map[string]string, len(gaudiQueryFields))
	for i, name := range gaudiQueryFields {
		fields[name] = strings.TrimSpace(rec[i])
	}
	return fields, true, nil
}

// GaudiReader implements contracts.DeviceReader over a sampler.Manager
// running hl-smi.
type GaudiReader struct {
	logger  *zap.Logger
	manager *sampler.Manager
}

// NewGaudiReader creates the reader over an existing sampler manager.
func NewGaudiReader(manager *sampler.Manager, logger *zap.Logger) *GaudiReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GaudiReader{manager: manager, logger: logger}
}

func (r *GaudiReader) Name() string { return "gaudi" }

func (r *GaudiReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	if err := r.manager.EnsureRunning(ctx); err != nil {
		return nil, err
	}
	frame, ok := r.manager.Latest()
	if !ok {
		return nil, contracts.NewReaderError(contracts.KindWarming, r.Name(), errGaudiWarming)
	}

	idx, _ := strconv.Atoi(frame.Fields["index"])
	sample := model.GpuSample{
		UUID:             naOr(frame.Fields["uuid"]),
		Name:             naOr(frame.Fields["name"]),
		Kind:             model.KindNPU,
		Index:            idx,
		UtilizationPct:   ClampPct(ParseFloatOr(frame.Fields["utilization.aip"], 0)),
		MemoryUsedBytes:  ParseUintBytesOr(frame.Fields["memory.used"], 0) * 1024 * 1024,
		MemoryTotalBytes: ParseUintBytesOr(frame.Fields["memory.total"], 0) * 1024 * 1024,
		PowerW:           ParseFloatOr(frame.Fields["power.draw"], 0),
	}
	if t := ParseFloatOr(frame.Fields["temperature.aip"], -1); t >= 0 {
		sample.TemperatureC = &t
	}
	sample.Clamp()
	return []model.DeviceSample{{Gpu: &sample}}, nil
}

func (r *GaudiReader) IsAvailable() bool {
	_, err := exec.LookPath("hl-smi")
	return err == nil
}

var errGaudiWarming = gaudiErr("gaudi sampler has not produced a frame yet")

type gaudiErr string

func (e gaudiErr) Error() string { return string(e) }
