package exporter

import (
	"strings"
	"testing"

	"github.com/zeroday0619/all-smi/internal/model"
)

func TestExport_EmitsEachFamilyHeaderOnce(t *testing.T) {
	snapshot := map[string]model.HostSnapshot{
		"host-a": {HostID: "host-a", FetchStatus: model.FetchOk},
		"host-b": {HostID: "host-b", FetchStatus: model.FetchOk},
	}

	out, err := New(nil).Export(snapshot)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	text := string(out)
	count := strings.Count(text, "# TYPE all_smi_host_fetch_status")
	if count != 1 {
		t.Errorf("expected exactly one header for all_smi_host_fetch_status, got %d", count)
	}
	if strings.Count(text, "all_smi_host_fetch_status{host_id=\"host-a\"}") != 1 {
		t.Errorf("expected one fetch-status line for host-a, body:\n%s", text)
	}
}

func TestExport_HostsSortedDeterministically(t *testing.T) {
	snapshot := map[string]model.HostSnapshot{
		"zeta":  {HostID: "zeta", FetchStatus: model.FetchOk},
		"alpha": {HostID: "alpha", FetchStatus: model.FetchOk},
	}

	out, err := New(nil).Export(snapshot)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	text := string(out)
	alphaIdx := strings.Index(text, `host_id="alpha"`)
	zetaIdx := strings.Index(text, `host_id="zeta"`)
	if alphaIdx == -1 || zetaIdx == -1 || alphaIdx > zetaIdx {
		t.Errorf("expected alpha to be emitted before zeta, body:\n%s", text)
	}
}

func TestExport_GPUDetailValueOnlyEmitsNumericFields(t *testing.T) {
	snapshot := map[string]model.HostSnapshot{
		"host-a": {
			HostID: "host-a",
			Devices: []model.GpuSample{
				{UUID: "u0", Name: "A100", Index: 0, Detail: map[string]string{
					"board_type":  "N/A",
					"tdp_limit_w": "300",
				}},
			},
		},
	}

	out, err := New(nil).Export(snapshot)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	text := string(out)
	if !strings.Contains(text, `key="tdp_limit_w"`) {
		t.Errorf("expected numeric detail field to be emitted, body:\n%s", text)
	}
	if strings.Contains(text, `key="board_type"`) {
		t.Errorf("expected non-numeric detail field to be skipped, body:\n%s", text)
	}
}
