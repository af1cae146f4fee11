package engine

import (
	"testing"

	"github.com/zeroday0619/all-smi/internal/model"
)

func TestDedupeStorage_KeepsFirstOccurrencePerMountPoint(t *testing.T) {
	in := []model.StorageSample{
		{MountPoint: "/", TotalBytes: 100},
		{MountPoint: "/data", TotalBytes: 200},
		{MountPoint: "/", TotalBytes: 999}, // duplicate, should be dropped
	}

	out := dedupeStorage(in)

	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].MountPoint != "/" || out[0].TotalBytes != 100 {
		t.Errorf("expected first occurrence of / to be kept, got %+v", out[0])
	}
	if out[1].MountPoint != "/data" {
		t.Errorf("expected /data to be preserved, got %+v", out[1])
	}
}
