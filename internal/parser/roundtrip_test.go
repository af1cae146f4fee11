package parser

import (
	"testing"
	"time"

	"github.com/zeroday0619/all-smi/internal/exporter"
	"github.com/zeroday0619/all-smi/internal/model"
)

func exportForTest(t *testing.T, snapshot map[string]model.HostSnapshot) []byte {
	t.Helper()
	out, err := exporter.New(nil).Export(snapshot)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	return out
}

func TestParsePrometheusText_LabelsAndValue(t *testing.T) {
	body := []byte(`# HELP all_smi_gpu_utilization help text
# TYPE all_smi_gpu_utilization gauge
all_smi_gpu_utilization{host_id="h1",gpu_index="0",gpu_name="A100"} 42.5
`)
	samples := ParsePrometheusText(body, nil)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	s := samples[0]
	if s.Name != "all_smi_gpu_utilization" || s.Value != 42.5 {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.Labels["host_id"] != "h1" || s.Labels["gpu_name"] != "A100" {
		t.Errorf("unexpected labels: %+v", s.Labels)
	}
}

func TestParsePrometheusText_NoLabels(t *testing.T) {
	samples := ParsePrometheusText([]byte("all_smi_memory_utilization 10\n"), nil)
	if len(samples) != 1 || samples[0].Value != 10 {
		t.Fatalf("unexpected result: %+v", samples)
	}
}

func TestParsePrometheusText_TruncatesOversizedInput(t *testing.T) {
	data := make([]byte, MaxPrometheusBytes+1)
	for i := range data {
		data[i] = 'a'
	}
	// Should not panic, and truncation shouldn't yield a parseable sample.
	samples := ParsePrometheusText(data, nil)
	if len(samples) != 0 {
		t.Fatalf("expected no samples from garbage input, got %d", len(samples))
	}
}

func TestParseLabels_HandlesEscapedQuotes(t *testing.T) {
	labels := parseLabels(`name="it says \"hi\""`)
	if labels["name"] != `it says "hi"` {
		t.Errorf("unexpected unescape: %q", labels["name"])
	}
}

func TestRoundTrip_GPUAndProcessSurviveExportParse(t *testing.T) {
	now := time.Now()
	original := map[string]model.HostSnapshot{
		"host-a": {
			HostID: "host-a",
			Devices: []model.GpuSample{
				{UUID: "gpu-uuid-0", Name: "A100", Kind: model.KindGPU, Index: 0,
					UtilizationPct: 55, MemoryUsedBytes: 1024, MemoryTotalBytes: 2048,
					PowerW: 120.5, FrequencyMHz: 1400, Detail: map[string]string{}},
			},
			Processes: []model.ProcessSample{
				{PID: 42, Name: "train.py", User: "root", DeviceUUID: "gpu-uuid-0",
					GPUMemoryBytes: 512, GPUUtilPct: 30},
			},
			FetchStatus: model.FetchOk,
			LastUpdated: now,
		},
	}

	exported := exportForTest(t, original)
	samples := ParsePrometheusText(exported, nil)
	reconstructed := ToHostSnapshots(samples, now)

	host, ok := reconstructed["host-a"]
	if !ok {
		t.Fatalf("expected host-a in reconstructed snapshot")
	}
	if len(host.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(host.Devices))
	}
	gpu := host.Devices[0]
	if gpu.UUID != "gpu-uuid-0" || gpu.UtilizationPct != 55 || gpu.PowerW != 120.5 {
		t.Errorf("gpu did not round-trip: %+v", gpu)
	}

	if len(host.Processes) != 1 {
		t.Fatalf("expected 1 process, got %d", len(host.Processes))
	}
	proc := host.Processes[0]
	if proc.DeviceUUID != "gpu-uuid-0" {
		t.Errorf("expected process DeviceUUID to resolve back to the GPU's UUID, got %q", proc.DeviceUUID)
	}
	if proc.GPUMemoryBytes != 512 || proc.GPUUtilPct != 30 {
		t.Errorf("process metrics did not round-trip: %+v", proc)
	}
}
