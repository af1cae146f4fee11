//go:build linux

// AMD GPU reader (spec section 4.2, Linux glibc only). The vendor GPU-top
// dynamic library binding (amd_smi/rocm_smi FFI) is not available anywhere
// in this pack (see DESIGN.md), so this reader goes straight to the sysfs
// contract the library itself ultimately reads from: drm card
// directories under /sys/class/drm and their amdgpu hwmon nodes. VRAM/GTT
// usage is read per card only: fdinfo is not read, so there is no
// per-process VRAM/GTT accounting. An opaque per-card handle is
// unnecessary here since sysfs paths are cheap to reopen each sample,
// unlike the library's device handle which the spec says should be reused.
package collector

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/contracts"
	"github.com/zeroday0619/all-smi/internal/model"
	"github.com/zeroday0619/all-smi/internal/parser"
)

const drmRoot = "/sys/class/drm"

// AMDReader implements contracts.DeviceReader for AMD GPUs.
type AMDReader struct {
	logger *zap.Logger
}

// NewAMDReader creates the AMD GPU reader.
func NewAMDReader(logger *zap.Logger) *AMDReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMDReader{logger: logger}
}

func (r *AMDReader) Name() string { return "amd" }

func (r *AMDReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	_ = ctx
	cards, err := amdCardDirs()
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, contracts.NewReaderError(contracts.KindNoDevices, r.Name(), errNoAMDCards)
	}

	out := make([]model.DeviceSample, 0, len(cards))
	for idx, card := range cards {
		devDir := filepath.Join(card, "device")

		if _, err := os.ReadDir(devDir); err != nil {
			if os.IsPermission(err) {
				return nil, contracts.NewReaderError(contracts.KindPermissionDenied, r.Name(), err).
					WithRemediation("add the current user to the video/render group")
			}
			continue
		}

		sample := model.GpuSample{
			UUID:  cardUUID(devDir, idx),
			Name:  readSysfsString(filepath.Join(devDir, "product_name"), "AMD GPU"),
			Kind:  model.KindGPU,
			Index: idx,
			UtilizationPct: ClampPct(ParseFloatOr(
				readSysfsString(filepath.Join(devDir, "gpu_busy_percent"), ""), 0)),
			PowerW: hwmonPower(devDir),
			Detail: map[string]string{
				"vram_used_bytes": naOr(readSysfsString(filepath.Join(devDir, "mem_info_vram_used"), "")),
				"gtt_used_bytes":  naOr(readSysfsString(filepath.Join(devDir, "mem_info_gtt_used"), "")),
			},
		}
		sample.MemoryUsedBytes = ParseUintBytesOr(readSysfsString(filepath.Join(devDir, "mem_info_vram_used"), ""), 0)
		sample.MemoryTotalBytes = ParseUintBytesOr(readSysfsString(filepath.Join(devDir, "mem_info_vram_total"), ""), 0)
		sample.Clamp()
		out = append(out, model.DeviceSample{Gpu: &sample})
	}
	return out, nil
}

var errNoAMDCards = amdErr("no amdgpu cards found under /sys/class/drm")

type amdErr string

func (e amdErr) Error() string { return string(e) }

func amdCardDirs() ([]string, error) {
	entries, err := os.ReadDir(drmRoot)
	if err != nil {
		return nil, err
	}
	var cards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "card") || strings.Contains(e.Name(), "-") {
			continue
		}
		devDir := filepath.Join(drmRoot, e.Name(), "device")
		vendor := readSysfsString(filepath.Join(devDir, "vendor"), "")
		if strings.EqualFold(vendor, "0x1002") { // AMD PCI vendor ID
			cards = append(cards, filepath.Join(drmRoot, e.Name()))
		}
	}
	return cards, nil
}

func cardUUID(devDir string, idx int) string {
	if serial := readSysfsString(filepath.Join(devDir, "unique_id"), ""); serial != "" {
		return serial
	}
	return "amd-gpu-" + strconv.Itoa(idx)
}

func hwmonPower(devDir string) float64 {
	matches, _ := filepath.Glob(filepath.Join(devDir, "hwmon", "hwmon*", "power1_average"))
	for _, m := range matches {
		if v := readSysfsString(m, ""); v != "" {
			return parser.MicrowattsToWatts(ParseFloatOr(v, 0))
		}
	}
	return 0
}

func readSysfsString(path, def string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return def
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return def
	}
	return s
}

func (r *AMDReader) IsAvailable() bool {
	cards, err := amdCardDirs()
	return err == nil && len(cards) > 0
}
