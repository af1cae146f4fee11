// Chassis reader — gathers host enclosure thermal readings (spec section
// 3's Chassis type). Adapted from the teacher's temperature collector: the
// same sensor-name matching tables and "maximum across matching sensors"
// logic, generalized from a flat {cpu_temp, gpu_temp} result into the
// ChassisSample shape, with the platform-specific nvidia-smi fallback
// inlined directly (the teacher routed it through a platform.Platform
// indirection this package no longer carries).
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

var cpuSensorKeys = []string{
	"cpu", "core", "package", "tctl", "tdie", "k10temp", "coretemp",
	"tc0p", "tc0d", "tcxc", "acpitz", "zenpower",
}

var gpuSensorKeys = []string{
	"gpu", "nvidia", "amd", "radeon", "tg0p", "tg0d", "amdgpu", "nouveau",
}

const (
	minValidTemp = 0.0
	maxValidTemp = 150.0
)

// ChassisReader implements contracts.DeviceReader, reporting a best-effort
// ChassisSample: CPU sensor maximum stands in for inlet, GPU sensor
// maximum for outlet, since most hosts in scope (spec's deployment targets
// are Linux servers, Jetson boards, Mac minis) expose neither a real BMC
// nor discrete inlet/outlet probes.
type ChassisReader struct {
	logger *zap.Logger
}

// NewChassisReader creates the chassis reader.
func NewChassisReader(logger *zap.Logger) *ChassisReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChassisReader{logger: logger}
}

func (r *ChassisReader) Name() string { return "chassis" }

func (r *ChassisReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		r.logger.Debug("temperature sensors not available", zap.Error(err))
	}

	var cpuMax, gpuMax float64
	cpuFound, gpuFound := false, false
	for _, t := range temps {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		name := strings.ToLower(t.SensorKey)
		if matchesSensor(name, cpuSensorKeys) && (!cpuFound || t.Temperature > cpuMax) {
			cpuMax, cpuFound = t.Temperature, true
		}
		if matchesSensor(name, gpuSensorKeys) && (!gpuFound || t.Temperature > gpuMax) {
			gpuMax, gpuFound = t.Temperature, true
		}
	}

	if !gpuFound {
		if t, ok := r.nvidiaSMITemp(ctx); ok {
			gpuMax, gpuFound = t, true
		}
	}

	if !cpuFound && !gpuFound {
		return nil, nil
	}

	sample := model.ChassisSample{}
	if cpuFound {
		sample.InletTempC = &cpuMax
	}
	if gpuFound {
		sample.OutletTempC = &gpuMax
	}
	return []model.DeviceSample{{Chassis: &sample}}, nil
}

func (r *ChassisReader) nvidiaSMITemp(ctx context.Context) (float64, bool) {
	out, err := RunTool(ctx, r.Name(), "nvidia-smi",
		"--query-gpu=temperature.gpu", "--format=csv,noheader,nounits")
	if err != nil {
		return 0, false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return 0, false
	}
	v := ParseFloatOr(lines[0], -1)
	if v < 0 || !isValidTemperature(v) {
		return 0, false
	}
	return v, true
}

func (r *ChassisReader) IsAvailable() bool { return true }

func matchesSensor(name string, keys []string) bool {
	for _, key := range keys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
