// Package model defines the data types sampled by device readers, carried
// through the collection engine, and rendered by the exporter: the
// DeviceSample tagged union, CPU/Memory/Storage/Chassis/Process shapes, and
// the AppState snapshot types. Nothing in this package does I/O.
package model

import "time"

// DeviceKind distinguishes the three accelerator families the spec tracks.
// NPU and TPU devices are carried as Gpu samples with Kind set accordingly,
// per spec section 3 ("Gpu: ... kind in {GPU, NPU, TPU}").
type DeviceKind string

const (
	KindGPU DeviceKind = "GPU"
	KindNPU DeviceKind = "NPU"
	KindTPU DeviceKind = "TPU"
)

// CPUPlatform is the CPU vendor/architecture tag used for metric labels
// and for choosing Apple-Silicon-specific reporting.
type CPUPlatform string

const (
	PlatformIntel CPUPlatform = "Intel"
	PlatformAMD   CPUPlatform = "AMD"
	PlatformApple CPUPlatform = "AppleSilicon"
	PlatformARM   CPUPlatform = "ARM"
	PlatformOther CPUPlatform = "Other"
)

// CoreType distinguishes performance/efficiency cores on heterogeneous
// CPUs (Apple Silicon, recent Intel) from uniform ("Standard") cores.
type CoreType string

const (
	CoreStandard     CoreType = "Standard"
	CorePerformance  CoreType = "P"
	CoreEfficiency   CoreType = "E"
)

// PSUStatus is the health status of one power supply unit in a Chassis
// sample.
type PSUStatus string

const (
	PSUOk       PSUStatus = "Ok"
	PSUWarning  PSUStatus = "Warning"
	PSUCritical PSUStatus = "Critical"
	PSUUnknown  PSUStatus = "Unknown"
)

// GpuSample is one accelerator's (GPU/NPU/TPU) reading. Detail carries
// vendor-specific fields that do not warrant a first-class struct field:
// PCIe generation/width, firmware versions, ECC counters, ANE power,
// thermal pressure, TDP limits, board type, core counts, and similar.
// A missing value is represented by omitting the key, not by "N/A" —
// "N/A" is a presentation-layer concern reserved for readers that choose
// to surface an explicit placeholder (see NVIDIA CLI fallback, spec 4.2).
type GpuSample struct {
	UUID              string
	Name              string
	Kind              DeviceKind
	Index             int
	UtilizationPct    float64
	MemoryUsedBytes   uint64
	MemoryTotalBytes  uint64
	TemperatureC      *float64
	PowerW            float64
	FrequencyMHz      float64
	Detail            map[string]string
}

// Clamp enforces the GpuSample invariants from spec section 3:
// 0 <= utilization <= 100 and memory_used <= memory_total.
func (g *GpuSample) Clamp() {
	if g.UtilizationPct < 0 {
		g.UtilizationPct = 0
	}
	if g.UtilizationPct > 100 {
		g.UtilizationPct = 100
	}
	if g.MemoryUsedBytes > g.MemoryTotalBytes && g.MemoryTotalBytes > 0 {
		g.MemoryUsedBytes = g.MemoryTotalBytes
	}
}

// CoreUtilization is one logical CPU core's utilization and type.
type CoreUtilization struct {
	CoreID int
	Type   CoreType
	Pct    float64
}

// AppleSiliconCPU carries the unified-memory-architecture fields that only
// apply to Apple Silicon hosts.
type AppleSiliconCPU struct {
	PCoreCount         int
	ECoreCount         int
	GPUCoreCount       int
	PClusterFreqMHz    float64
	EClusterFreqMHz    float64
	PClusterUtilPct    float64
	EClusterUtilPct    float64
}

// CpuSample is the host CPU reading for one socket-set.
type CpuSample struct {
	Model          string
	Platform       CPUPlatform
	Sockets        int
	TotalCores     int
	TotalThreads   int
	BaseFreqMHz    float64
	MaxFreqMHz     float64
	UtilizationPct float64
	TemperatureC   *float64
	PowerW         *float64
	PerCore        []CoreUtilization
	AppleSilicon   *AppleSiliconCPU
}

// MemorySample is the host memory reading.
type MemorySample struct {
	TotalBytes     uint64
	UsedBytes      uint64
	AvailableBytes uint64
	FreeBytes      uint64
	BuffersBytes   uint64 // Linux only
	CachedBytes    uint64 // Linux only
	SwapTotalBytes uint64
	SwapUsedBytes  uint64
	SwapFreeBytes  uint64
	UtilizationPct float64
}

// StorageSample is one mounted filesystem's usage on one host.
type StorageSample struct {
	MountPoint     string
	TotalBytes     uint64
	AvailableBytes uint64
	HostID         string
	Hostname       string
	Index          int
}

// FanSample is one chassis fan reading.
type FanSample struct {
	Name   string
	ID     string
	RPM    int
	MaxRPM int
}

// PSUSample is one chassis power-supply reading.
type PSUSample struct {
	Name   string
	ID     string
	Status PSUStatus
	WattsW *float64
}

// ChassisSample is the host enclosure's environmental reading.
type ChassisSample struct {
	TotalWatts      float64
	InletTempC      *float64
	OutletTempC     *float64
	ThermalPressure string
	Fans            []FanSample
	PSUs            []PSUSample
}

// ProcessSample is one process's resource usage, optionally attributed to
// an accelerator (DeviceUUID must match a GpuSample.UUID in the same
// sample set per spec section 3's invariant).
type ProcessSample struct {
	PID            int32
	PPID           int32
	Name           string
	Command        string
	User           string
	State          string
	Threads        int
	Priority        int
	Nice           int
	CPUPct         float64
	MemPct         float64
	RSSBytes       uint64
	VMSBytes       uint64
	CPUTimeSeconds float64
	StartTime      time.Time
	DeviceUUID     string
	GPUMemoryBytes uint64
	GPUUtilPct     float64
}

// FetchStatus is a HostSnapshot's data-freshness state, used by both the
// local engine (transitions Pending -> Ok on first successful cycle) and
// the remote engine (Ok -> ErrWithReason on scrape failure while the prior
// snapshot is retained).
type FetchStatus int

const (
	FetchPending FetchStatus = iota
	FetchOk
	FetchErrWithReason
)

func (s FetchStatus) String() string {
	switch s {
	case FetchPending:
		return "pending"
	case FetchOk:
		return "ok"
	case FetchErrWithReason:
		return "error"
	default:
		return "unknown"
	}
}

// HostSnapshot is the latest known sample set for one host, plus its
// freshness bookkeeping.
type HostSnapshot struct {
	HostID      string
	Hostname    string
	Devices     []GpuSample
	CPUs        []CpuSample
	Memory      MemorySample
	Storages    []StorageSample
	Chassis     *ChassisSample
	Processes   []ProcessSample
	LastUpdated time.Time
	FetchStatus FetchStatus
	StatusError string
}

// DeviceSample is the tagged union a DeviceReader emits: exactly one field
// is non-nil per element, naming which resource family it carries. Modeled
// as parallel optional pointers rather than an interface{} payload so
// callers can switch on a nil check instead of a type assertion, and so
// HostSnapshot can keep its existing typed slices (Devices, CPUs, ...)
// when a collection strategy sorts a []DeviceSample back into a snapshot.
type DeviceSample struct {
	Gpu     *GpuSample
	Cpu     *CpuSample
	Memory  *MemorySample
	Storage *StorageSample
	Chassis *ChassisSample
	Process *ProcessSample
}

// Frame is one parsed record emitted by a sampler subprocess (spec
// section 3, SamplerStore). Fields is a tolerant string->string bag;
// readers consuming a Frame know which keys their tool emits.
type Frame struct {
	Sequence uint64
	Captured time.Time
	Fields   map[string]string
}
