// Storage reader — gathers per-mount disk usage, deduplicated by
// (host_id, mount_point) and with pseudo/virtual filesystems excluded
// (spec section 3's Storage type and section 4.2's storage reader).
// Adapted from the teacher's disk collector, which already carried this
// pseudo-filesystem exclusion table and gopsutil-based enumeration.
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/zeroday0619/all-smi/internal/model"
)

// pseudoFSTypes are virtual/system and network/remote filesystem types
// excluded from Storage samples: they do not represent local storage
// devices an operator would want capacity alerts on.
var pseudoFSTypes = map[string]bool{
	"devfs": true, "autofs": true, "nullfs": true, "tmpfs": true, "sysfs": true,
	"proc": true, "procfs": true, "devtmpfs": true, "cgroup": true, "cgroup2": true,
	"overlay": true, "squashfs": true, "fuse.snapfuse": true, "nsfs": true,
	"pstore": true, "debugfs": true, "tracefs": true, "securityfs": true,
	"configfs": true, "fusectl": true, "mqueue": true, "hugetlbfs": true,
	"binfmt_misc": true, "efivarfs": true, "bpf": true, "ramfs": true,
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "fuse.sshfs": true,
	"fuse.rclone": true, "9p": true, "afs": true, "ncpfs": true, "glusterfs": true,
	"lustre": true, "ceph": true, "fuse.ceph": true, "gpfs": true, "pvfs2": true,
	"fuse.s3fs": true, "fuse.gcsfuse": true, "fuse.blobfuse": true, "davfs2": true,
}

var systemMountPrefixes = []string{"/System/Volumes/", "/private/var/vm"}

func isSystemMount(mount string) bool {
	for _, prefix := range systemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// StorageReader implements contracts.DeviceReader for local storage.
type StorageReader struct {
	logger   *zap.Logger
	hostID   string
	hostname string
}

// NewStorageReader creates the storage reader. hostID/hostname are stamped
// onto every StorageSample so the aggregator can dedup across strategies
// on (host_id, mount_point) per spec section 5.
func NewStorageReader(hostID, hostname string, logger *zap.Logger) *StorageReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageReader{logger: logger, hostID: hostID, hostname: hostname}
}

func (r *StorageReader) Name() string { return "storage" }

func (r *StorageReader) Sample(ctx context.Context) ([]model.DeviceSample, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(partitions))
	var out []model.DeviceSample
	index := 0
	for _, p := range partitions {
		if pseudoFSTypes[strings.ToLower(p.Fstype)] {
			continue
		}
		if isSystemMount(p.Mountpoint) {
			continue
		}
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			r.logger.Debug("skipping inaccessible mount", zap.String("mount", p.Mountpoint), zap.Error(err))
			continue
		}

		sample := model.StorageSample{
			MountPoint:     p.Mountpoint,
			TotalBytes:     usage.Total,
			AvailableBytes: usage.Free,
			HostID:         r.hostID,
			Hostname:       r.hostname,
			Index:          index,
		}
		index++
		out = append(out, model.DeviceSample{Storage: &sample})
	}
	return out, nil
}

func (r *StorageReader) IsAvailable() bool { return true }
