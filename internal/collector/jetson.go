//go:build linux

// NVIDIA Jetson reader (spec section 4.2): the integrated platform has no
// discrete nvidia-smi, so utilization and power come from the tegrastats
// sysfs-like files directly rather than a CLI query.
package collector

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
	"github.com/zeroday0619/all-smi/internal/parser"
)

const jetsonGPULoadPath = "/sys/devices/platform/gpu.0/load"

var jetsonRailGlobs = []string{
	"/sys/bus/i2c/drivers/ina3221x/*/iio:device*/in_power*_input",
	"/sys/class/hwmon/hwmon*/power*_input",
}

// JetsonReader implements contracts.DeviceReader for the Jetson integrated
// GPU.
type JetsonReader struct {
	logger *zap.Logger
}

// NewJetsonReader creates the Jetson reader.
func NewJetsonReader(logger *zap.Logger) *JetsonReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JetsonReader{logger: logger}
}

func (r *JetsonReader) Name() string { return "jetson" }

func (r *JetsonReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	_ = ctx
	data, err := os.ReadFile(jetsonGPULoadPath)
	if err != nil {
		return nil, err
	}
	// The driver reports load as an integer permille (0-1000).
	raw := strings.TrimSpace(string(data))
	permille, err := strconv.Atoi(raw)
	if err != nil {
		permille = 0
	}
	pct := ClampPct(parser.PermilleToPercent(float64(permille)))

	var powerW float64
	for _, glob := range jetsonRailGlobs {
		matches, _ := filepath.Glob(glob)
		for _, m := range matches {
			if v, err := os.ReadFile(m); err == nil {
				powerW += parser.MicrowattsToWatts(ParseFloatOr(strings.TrimSpace(string(v)), 0))
			}
		}
		if powerW > 0 {
			break
		}
	}

	sample := model.GpuSample{
		UUID:           "jetson-igpu-0",
		Name:           "Jetson Integrated GPU",
		Kind:           model.KindGPU,
		Index:          0,
		UtilizationPct: pct,
		PowerW:         powerW,
		Detail:         map[string]string{"dla_utilization": r.dlaUtilization()},
	}
	sample.Clamp()
	return []model.DeviceSample{{Gpu: &sample}}, nil
}

func (r *JetsonReader) dlaUtilization() string {
	for _, path := range []string{
		"/sys/devices/platform/dla0/load",
		"/sys/devices/platform/15880000.nvdla0/load",
	} {
		if data, err := os.ReadFile(path); err == nil {
			raw := strings.TrimSpace(string(data))
			if permille, err := strconv.Atoi(raw); err == nil {
				return strconv.FormatFloat(parser.PermilleToPercent(float64(permille)), 'f', 1, 64)
			}
		}
	}
	return "N/A"
}

func (r *JetsonReader) IsAvailable() bool {
	_, err := os.Stat(jetsonGPULoadPath)
	return err == nil
}
