package parser

import (
	"strconv"
	"time"

	"github.com/zeroday0619/all-smi/internal/model"
)

// ToHostSnapshots reconstructs per-host HostSnapshots from the flat
// Sample list produced by ParsePrometheusText, by grouping on the
// host_id label every exporter-emitted family carries. This is the
// counterpart to internal/exporter's Export: together they must round
// trip every metric value named in spec section 6.1 (spec section 8:
// "exporter(state) -> parser -> aggregator -> state'").
//
// all_smi_gpu_detail_value is folded back into the GPU's Detail map.
// all_smi_cpu_socket_utilization is not read back: the exporter derives
// it from the CPU utilization, and the reconstructed CPU carries no
// socket count, so re-exporting it emits one socket line per CPU.
func ToHostSnapshots(samples []Sample, now time.Time) map[string]model.HostSnapshot {
	hosts := make(map[string]*model.HostSnapshot)
	gpuIndex := make(map[string]map[int]*model.GpuSample) // host -> index -> gpu

	host := func(id string) *model.HostSnapshot {
		h, ok := hosts[id]
		if !ok {
			h = &model.HostSnapshot{HostID: id, LastUpdated: now, FetchStatus: model.FetchOk}
			hosts[id] = h
			gpuIndex[id] = make(map[int]*model.GpuSample)
		}
		return h
	}

	gpu := func(id string, labels map[string]string) *model.GpuSample {
		idx, _ := strconv.Atoi(labels["gpu_index"])
		h := host(id)
		if g, ok := gpuIndex[id][idx]; ok {
			return g
		}
		g := &model.GpuSample{Index: idx, Name: labels["gpu_name"], Detail: map[string]string{}}
		gpuIndex[id][idx] = g
		h.Devices = append(h.Devices, *g)
		return g
	}

	syncGPU := func(id string, g *model.GpuSample) {
		devs := hosts[id].Devices
		for i := range devs {
			if devs[i].Index == g.Index {
				devs[i] = *g
				return
			}
		}
	}

	for _, s := range samples {
		id := s.Labels["host_id"]
		if id == "" {
			continue
		}

		switch s.Name {
		case "all_smi_gpu_utilization":
			g := gpu(id, s.Labels)
			g.UtilizationPct = s.Value
			syncGPU(id, g)
		case "all_smi_gpu_memory_used_bytes":
			g := gpu(id, s.Labels)
			g.MemoryUsedBytes = uint64(s.Value)
			syncGPU(id, g)
		case "all_smi_gpu_memory_total_bytes":
			g := gpu(id, s.Labels)
			g.MemoryTotalBytes = uint64(s.Value)
			syncGPU(id, g)
		case "all_smi_gpu_temperature_celsius":
			g := gpu(id, s.Labels)
			v := s.Value
			g.TemperatureC = &v
			syncGPU(id, g)
		case "all_smi_gpu_power_consumption_watts":
			g := gpu(id, s.Labels)
			g.PowerW = s.Value
			syncGPU(id, g)
		case "all_smi_gpu_frequency_mhz":
			g := gpu(id, s.Labels)
			g.FrequencyMHz = s.Value
			syncGPU(id, g)
		case "all_smi_gpu_info":
			g := gpu(id, s.Labels)
			g.UUID = s.Labels["uuid"]
			g.Kind = model.DeviceKind(s.Labels["kind"])
			for _, k := range []string{"driver_version", "lib_name", "lib_version"} {
				if v := s.Labels[k]; v != "" {
					g.Detail[k] = v
				}
			}
			syncGPU(id, g)
		case "all_smi_gpu_detail_value":
			g := gpu(id, s.Labels)
			if key := s.Labels["key"]; key != "" {
				g.Detail[key] = strconv.FormatFloat(s.Value, 'f', -1, 64)
			}
			syncGPU(id, g)
		case "all_smi_cpu_utilization":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			h.CPUs[0].UtilizationPct = s.Value
		case "all_smi_cpu_core_count":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			h.CPUs[0].TotalCores = int(s.Value)
		case "all_smi_cpu_thread_count":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			h.CPUs[0].TotalThreads = int(s.Value)
		case "all_smi_cpu_frequency_mhz":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			h.CPUs[0].MaxFreqMHz = s.Value
		case "all_smi_cpu_temperature_celsius":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			v := s.Value
			h.CPUs[0].TemperatureC = &v
		case "all_smi_cpu_power_consumption_watts":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			v := s.Value
			h.CPUs[0].PowerW = &v
		case "all_smi_cpu_p_core_utilization", "all_smi_cpu_e_core_utilization":
			h := host(id)
			h.CPUs = ensureCPU(h.CPUs)
			if h.CPUs[0].AppleSilicon == nil {
				h.CPUs[0].AppleSilicon = &model.AppleSiliconCPU{}
			}
			if s.Name == "all_smi_cpu_p_core_utilization" {
				h.CPUs[0].AppleSilicon.PClusterUtilPct = s.Value
			} else {
				h.CPUs[0].AppleSilicon.EClusterUtilPct = s.Value
			}
		case "all_smi_memory_total_bytes":
			host(id).Memory.TotalBytes = uint64(s.Value)
		case "all_smi_memory_used_bytes":
			host(id).Memory.UsedBytes = uint64(s.Value)
		case "all_smi_memory_available_bytes":
			host(id).Memory.AvailableBytes = uint64(s.Value)
		case "all_smi_memory_free_bytes":
			host(id).Memory.FreeBytes = uint64(s.Value)
		case "all_smi_memory_utilization":
			host(id).Memory.UtilizationPct = s.Value
		case "all_smi_memory_swap_total_bytes":
			host(id).Memory.SwapTotalBytes = uint64(s.Value)
		case "all_smi_memory_swap_used_bytes":
			host(id).Memory.SwapUsedBytes = uint64(s.Value)
		case "all_smi_memory_swap_free_bytes":
			host(id).Memory.SwapFreeBytes = uint64(s.Value)
		case "all_smi_disk_total_bytes":
			h := host(id)
			mp := s.Labels["mount_point"]
			st := findStorage(h, mp)
			st.TotalBytes = uint64(s.Value)
			upsertStorage(h, st)
		case "all_smi_disk_available_bytes":
			h := host(id)
			mp := s.Labels["mount_point"]
			st := findStorage(h, mp)
			st.AvailableBytes = uint64(s.Value)
			upsertStorage(h, st)
		case "all_smi_gpu_process_memory_bytes":
			h := host(id)
			p := findProcess(h, s.Labels, resolveUUID(gpuIndex[id], s.Labels["gpu_index"]))
			p.GPUMemoryBytes = uint64(s.Value)
			upsertProcess(h, p)
		case "all_smi_gpu_process_utilization":
			h := host(id)
			p := findProcess(h, s.Labels, resolveUUID(gpuIndex[id], s.Labels["gpu_index"]))
			p.GPUUtilPct = s.Value
			upsertProcess(h, p)
		case "all_smi_host_fetch_status":
			host(id).FetchStatus = model.FetchStatus(int(s.Value))
		}
	}

	out := make(map[string]model.HostSnapshot, len(hosts))
	for id, h := range hosts {
		out[id] = *h
	}
	return out
}

func ensureCPU(cpus []model.CpuSample) []model.CpuSample {
	if len(cpus) == 0 {
		return []model.CpuSample{{}}
	}
	return cpus
}

func findStorage(h *model.HostSnapshot, mountPoint string) model.StorageSample {
	for _, st := range h.Storages {
		if st.MountPoint == mountPoint {
			return st
		}
	}
	return model.StorageSample{MountPoint: mountPoint, HostID: h.HostID}
}

func upsertStorage(h *model.HostSnapshot, st model.StorageSample) {
	for i := range h.Storages {
		if h.Storages[i].MountPoint == st.MountPoint {
			h.Storages[i] = st
			return
		}
	}
	h.Storages = append(h.Storages, st)
}

// resolveUUID maps a process sample's gpu_index label back to that GPU's
// UUID via the per-host index built while reconstructing devices, so a
// re-exported process metric's gpu_index/gpu_name labels match the
// original (exporter.resolveGPULabel looks up by UUID, not by index).
func resolveUUID(devices map[int]*model.GpuSample, gpuIndexLabel string) string {
	idx, err := strconv.Atoi(gpuIndexLabel)
	if err != nil {
		return ""
	}
	if g, ok := devices[idx]; ok {
		return g.UUID
	}
	return ""
}

func findProcess(h *model.HostSnapshot, labels map[string]string, deviceUUID string) model.ProcessSample {
	pid, _ := strconv.Atoi(labels["pid"])
	for _, p := range h.Processes {
		if int(p.PID) == pid {
			return p
		}
	}
	return model.ProcessSample{
		PID:        int32(pid),
		Name:       labels["process_name"],
		User:       labels["user"],
		DeviceUUID: deviceUUID,
	}
}

func upsertProcess(h *model.HostSnapshot, p model.ProcessSample) {
	for i := range h.Processes {
		if h.Processes[i].PID == p.PID {
			h.Processes[i] = p
			return
		}
	}
	h.Processes = append(h.Processes, p)
}
