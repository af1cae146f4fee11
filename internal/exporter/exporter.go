// Package exporter implements the Prometheus exposition renderer (spec
// section 4.6 / C6). It never samples: it reads a snapshot handed to it
// by the caller (AppState.Snapshot()) and renders the metric families
// enumerated in spec section 6.1 into one UTF-8 text blob.
package exporter

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// Exporter implements contracts.MetricsExporter.
type Exporter struct {
	logger *zap.Logger
}

// New creates an Exporter. Pass nil for logger to disable logging.
func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger}
}

// family declares one metric family's name, help text, and Prometheus
// type, printed once as a comment header before its sample lines (spec
// 6.1: "each metric family appears at most once per response").
type family struct {
	name string
	help string
	typ  string
}

var (
	famGPUUtilization    = family{"all_smi_gpu_utilization", "Accelerator utilization percentage.", "gauge"}
	famGPUMemUsed        = family{"all_smi_gpu_memory_used_bytes", "Accelerator memory in use.", "gauge"}
	famGPUMemTotal       = family{"all_smi_gpu_memory_total_bytes", "Accelerator memory capacity.", "gauge"}
	famGPUTemp           = family{"all_smi_gpu_temperature_celsius", "Accelerator die temperature.", "gauge"}
	famGPUPower          = family{"all_smi_gpu_power_consumption_watts", "Accelerator power draw.", "gauge"}
	famGPUFreq           = family{"all_smi_gpu_frequency_mhz", "Accelerator core clock.", "gauge"}
	famGPUInfo           = family{"all_smi_gpu_info", "Accelerator identity metadata.", "gauge"}
	famGPUProcMem        = family{"all_smi_gpu_process_memory_bytes", "Per-process accelerator memory.", "gauge"}
	famGPUProcUtil       = family{"all_smi_gpu_process_utilization", "Per-process accelerator utilization percentage.", "gauge"}
	famANEPower          = family{"all_smi_ane_power_watts", "Apple Neural Engine power draw.", "gauge"}
	famCPUUtilization    = family{"all_smi_cpu_utilization", "Host CPU utilization percentage.", "gauge"}
	famCPUCoreCount      = family{"all_smi_cpu_core_count", "Host CPU core count.", "gauge"}
	famCPUThreadCount    = family{"all_smi_cpu_thread_count", "Host CPU thread count.", "gauge"}
	famCPUFreq           = family{"all_smi_cpu_frequency_mhz", "Host CPU clock.", "gauge"}
	famCPUTemp           = family{"all_smi_cpu_temperature_celsius", "Host CPU temperature.", "gauge"}
	famCPUPower          = family{"all_smi_cpu_power_consumption_watts", "Host CPU package power draw.", "gauge"}
	famCPUSocketUtil     = family{"all_smi_cpu_socket_utilization", "Per-socket CPU utilization percentage.", "gauge"}
	famCPUPCoreUtil      = family{"all_smi_cpu_p_core_utilization", "Apple Silicon performance-core cluster utilization.", "gauge"}
	famCPUECoreUtil      = family{"all_smi_cpu_e_core_utilization", "Apple Silicon efficiency-core cluster utilization.", "gauge"}
	famMemTotal          = family{"all_smi_memory_total_bytes", "Host memory capacity.", "gauge"}
	famMemUsed           = family{"all_smi_memory_used_bytes", "Host memory in use.", "gauge"}
	famMemAvailable      = family{"all_smi_memory_available_bytes", "Host memory available to new allocations.", "gauge"}
	famMemFree           = family{"all_smi_memory_free_bytes", "Host memory entirely unused.", "gauge"}
	famMemUtilization    = family{"all_smi_memory_utilization", "Host memory utilization percentage.", "gauge"}
	famMemSwapTotal      = family{"all_smi_memory_swap_total_bytes", "Host swap capacity.", "gauge"}
	famMemSwapUsed       = family{"all_smi_memory_swap_used_bytes", "Host swap in use.", "gauge"}
	famMemSwapFree       = family{"all_smi_memory_swap_free_bytes", "Host swap free.", "gauge"}
	famDiskTotal         = family{"all_smi_disk_total_bytes", "Mounted filesystem capacity.", "gauge"}
	famDiskAvailable     = family{"all_smi_disk_available_bytes", "Mounted filesystem available space.", "gauge"}
	famDetailValue       = family{"all_smi_gpu_detail_value", "Vendor-specific accelerator detail field, where numeric.", "gauge"}
	famFetchStatus       = family{"all_smi_host_fetch_status", "Host snapshot freshness: 0 pending, 1 ok, 2 error.", "gauge"}
)

// Export renders snapshot into a single Prometheus exposition text blob.
// Implements contracts.MetricsExporter.
func (e *Exporter) Export(snapshot map[string]model.HostSnapshot) ([]byte, error) {
	buf := &bytes.Buffer{}

	hostIDs := make([]string, 0, len(snapshot))
	for id := range snapshot {
		hostIDs = append(hostIDs, id)
	}
	sort.Strings(hostIDs)

	w := newWriter(buf)
	for _, famGroup := range []family{famGPUUtilization, famGPUMemUsed, famGPUMemTotal, famGPUTemp, famGPUPower, famGPUFreq, famGPUInfo} {
		w.header(famGroup)
		for _, hostID := range hostIDs {
			snap := snapshot[hostID]
			gpus := make([]model.GpuSample, len(snap.Devices))
			copy(gpus, snap.Devices)
			sort.Slice(gpus, func(i, j int) bool { return gpus[i].Index < gpus[j].Index })
			for _, gpu := range gpus {
				labels := gpuLabels(hostID, gpu)
				switch famGroup.name {
				case famGPUUtilization.name:
					w.metric(famGroup.name, labels, gpu.UtilizationPct)
				case famGPUMemUsed.name:
					w.metric(famGroup.name, labels, float64(gpu.MemoryUsedBytes))
				case famGPUMemTotal.name:
					w.metric(famGroup.name, labels, float64(gpu.MemoryTotalBytes))
				case famGPUTemp.name:
					if gpu.TemperatureC != nil {
						w.metric(famGroup.name, labels, *gpu.TemperatureC)
					}
				case famGPUPower.name:
					w.metric(famGroup.name, labels, gpu.PowerW)
				case famGPUFreq.name:
					w.metric(famGroup.name, labels, gpu.FrequencyMHz)
				case famGPUInfo.name:
					infoLabels := gpuInfoLabels(hostID, gpu)
					w.metric(famGroup.name, infoLabels, 1)
				}
			}
		}
	}

	w.header(famDetailValue)
	for _, hostID := range hostIDs {
		for _, gpu := range snapshot[hostID].Devices {
			keys := make([]string, 0, len(gpu.Detail))
			for k := range gpu.Detail {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v, err := strconv.ParseFloat(gpu.Detail[k], 64)
				if err != nil {
					continue
				}
				labels := gpuLabels(hostID, gpu)
				labels["key"] = k
				w.metric(famDetailValue.name, labels, v)
				if k == "ane_power_watts" {
					w.ensureHeader(famANEPower)
					w.metric(famANEPower.name, gpuLabels(hostID, gpu), v)
				}
			}
		}
	}

	w.header(famCPUUtilization)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			w.metric(famCPUUtilization.name, hostLabels(hostID), cpu.UtilizationPct)
		}
	}
	w.header(famCPUCoreCount)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			w.metric(famCPUCoreCount.name, hostLabels(hostID), float64(cpu.TotalCores))
		}
	}
	w.header(famCPUThreadCount)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			w.metric(famCPUThreadCount.name, hostLabels(hostID), float64(cpu.TotalThreads))
		}
	}
	w.header(famCPUFreq)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			if cpu.MaxFreqMHz > 0 {
				w.metric(famCPUFreq.name, hostLabels(hostID), cpu.MaxFreqMHz)
			}
		}
	}
	w.header(famCPUTemp)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			if cpu.TemperatureC != nil {
				w.metric(famCPUTemp.name, hostLabels(hostID), *cpu.TemperatureC)
			}
		}
	}
	w.header(famCPUPower)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			if cpu.PowerW != nil {
				w.metric(famCPUPower.name, hostLabels(hostID), *cpu.PowerW)
			}
		}
	}
	w.header(famCPUSocketUtil)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			sockets := cpu.Sockets
			if sockets < 1 {
				sockets = 1
			}
			for s := 0; s < sockets; s++ {
				labels := hostLabels(hostID)
				labels["socket"] = strconv.Itoa(s)
				w.metric(famCPUSocketUtil.name, labels, cpu.UtilizationPct)
			}
		}
	}
	w.header(famCPUPCoreUtil)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			if cpu.AppleSilicon != nil {
				w.metric(famCPUPCoreUtil.name, hostLabels(hostID), cpu.AppleSilicon.PClusterUtilPct)
			}
		}
	}
	w.header(famCPUECoreUtil)
	for _, hostID := range hostIDs {
		for _, cpu := range snapshot[hostID].CPUs {
			if cpu.AppleSilicon != nil {
				w.metric(famCPUECoreUtil.name, hostLabels(hostID), cpu.AppleSilicon.EClusterUtilPct)
			}
		}
	}

	for _, famGroup := range []family{famMemTotal, famMemUsed, famMemAvailable, famMemFree, famMemUtilization, famMemSwapTotal, famMemSwapUsed, famMemSwapFree} {
		w.header(famGroup)
		for _, hostID := range hostIDs {
			mem := snapshot[hostID].Memory
			labels := hostLabels(hostID)
			switch famGroup.name {
			case famMemTotal.name:
				w.metric(famGroup.name, labels, float64(mem.TotalBytes))
			case famMemUsed.name:
				w.metric(famGroup.name, labels, float64(mem.UsedBytes))
			case famMemAvailable.name:
				w.metric(famGroup.name, labels, float64(mem.AvailableBytes))
			case famMemFree.name:
				w.metric(famGroup.name, labels, float64(mem.FreeBytes))
			case famMemUtilization.name:
				w.metric(famGroup.name, labels, mem.UtilizationPct)
			case famMemSwapTotal.name:
				w.metric(famGroup.name, labels, float64(mem.SwapTotalBytes))
			case famMemSwapUsed.name:
				w.metric(famGroup.name, labels, float64(mem.SwapUsedBytes))
			case famMemSwapFree.name:
				w.metric(famGroup.name, labels, float64(mem.SwapFreeBytes))
			}
		}
	}

	for _, famGroup := range []family{famDiskTotal, famDiskAvailable} {
		w.header(famGroup)
		for _, hostID := range hostIDs {
			storages := make([]model.StorageSample, len(snapshot[hostID].Storages))
			copy(storages, snapshot[hostID].Storages)
			sort.Slice(storages, func(i, j int) bool { return storages[i].MountPoint < storages[j].MountPoint })
			for _, st := range storages {
				labels := map[string]string{"host_id": hostID, "mount_point": st.MountPoint}
				if famGroup.name == famDiskTotal.name {
					w.metric(famGroup.name, labels, float64(st.TotalBytes))
				} else {
					w.metric(famGroup.name, labels, float64(st.AvailableBytes))
				}
			}
		}
	}

	for _, famGroup := range []family{famGPUProcMem, famGPUProcUtil} {
		w.header(famGroup)
		for _, hostID := range hostIDs {
			procs := make([]model.ProcessSample, len(snapshot[hostID].Processes))
			copy(procs, snapshot[hostID].Processes)
			sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
			for _, p := range procs {
				if p.DeviceUUID == "" {
					continue
				}
				gpuIndex, gpuName := resolveGPULabel(snapshot[hostID].Devices, p.DeviceUUID)
				labels := map[string]string{
					"host_id":      hostID,
					"gpu_index":    gpuIndex,
					"gpu_name":     gpuName,
					"pid":          strconv.Itoa(int(p.PID)),
					"process_name": p.Name,
					"user":         p.User,
				}
				if famGroup.name == famGPUProcMem.name {
					w.metric(famGroup.name, labels, float64(p.GPUMemoryBytes))
				} else {
					w.metric(famGroup.name, labels, p.GPUUtilPct)
				}
			}
		}
	}

	w.header(famFetchStatus)
	for _, hostID := range hostIDs {
		w.metric(famFetchStatus.name, hostLabels(hostID), float64(snapshot[hostID].FetchStatus))
	}

	return buf.Bytes(), nil
}

func resolveGPULabel(gpus []model.GpuSample, uuid string) (string, string) {
	for _, g := range gpus {
		if g.UUID == uuid {
			return strconv.Itoa(g.Index), g.Name
		}
	}
	return "-1", "unknown"
}

func gpuLabels(hostID string, gpu model.GpuSample) map[string]string {
	return map[string]string{
		"host_id":   hostID,
		"gpu_index": strconv.Itoa(gpu.Index),
		"gpu_name":  gpu.Name,
	}
}

func gpuInfoLabels(hostID string, gpu model.GpuSample) map[string]string {
	labels := gpuLabels(hostID, gpu)
	labels["uuid"] = gpu.UUID
	labels["kind"] = string(gpu.Kind)
	labels["driver_version"] = gpu.Detail["driver_version"]
	labels["lib_name"] = gpu.Detail["lib_name"]
	labels["lib_version"] = gpu.Detail["lib_version"]
	return labels
}

func hostLabels(hostID string) map[string]string {
	return map[string]string{"host_id": hostID}
}

// writer buffers exposition output and tracks which family headers have
// already been printed so a family never appears twice (spec 6.1).
type writer struct {
	buf     *bytes.Buffer
	printed map[string]bool
}

func newWriter(buf *bytes.Buffer) *writer {
	return &writer{buf: buf, printed: make(map[string]bool)}
}

func (w *writer) header(f family) {
	if w.printed[f.name] {
		return
	}
	w.printed[f.name] = true
	fmt.Fprintf(w.buf, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.typ)
}

// ensureHeader is header for families whose lines are conditionally
// emitted inside another family's loop (famANEPower, nested under the
// detail-value loop).
func (w *writer) ensureHeader(f family) { w.header(f) }

func (w *writer) metric(name string, labels map[string]string, value float64) {
	w.buf.WriteString(name)
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w.buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			fmt.Fprintf(w.buf, "%s=%q", k, labels[k])
		}
		w.buf.WriteByte('}')
	}
	w.buf.WriteByte(' ')
	w.buf.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	w.buf.WriteByte('\n')
}
