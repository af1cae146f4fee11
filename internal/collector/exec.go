// Package collector implements the device-reader abstraction (spec section
// 4.2): one file per vendor/resource family, sharing a command-execution
// helper, tolerant numeric parsing, and the Collector/DeviceReader
// adaptation used by the reader factory and the local collection
// strategy's fan-out.
package collector

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/zeroday0619/all-smi/internal/contracts"
)

// DefaultCommandDeadline is the hard deadline applied to every external
// tool invocation (spec section 4.2: "a hard deadline (default 2s)").
const DefaultCommandDeadline = 2 * time.Second

// RunTool executes name with args under a deadline, with no shell
// interpretation — args are passed directly to exec, never concatenated
// into a shell string, so untrusted values cannot inject additional
// commands. It returns captured stdout or a classified ReaderError.
func RunTool(ctx context.Context, source, name string, args ...string) ([]byte, error) {
	return RunToolWithDeadline(ctx, source, DefaultCommandDeadline, name, args...)
}

// RunToolWithDeadline is RunTool with an explicit deadline override.
func RunToolWithDeadline(ctx context.Context, source string, deadline time.Duration, name string, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return nil, contracts.NewReaderError(contracts.KindDeviceAccess, source,
				fmt.Errorf("%s timed out after %s", name, deadline))
		}
		if isNotFound(err) {
			return nil, contracts.NewReaderError(contracts.KindPlatformInit, source,
				fmt.Errorf("%s not found: %w", name, err))
		}
		return nil, contracts.NewReaderError(contracts.KindDeviceAccess, source,
			fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String())))
	}
	return stdout.Bytes(), nil
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	if eerr, ok := err.(*exec.Error); ok {
		execErr = eerr
	}
	return execErr != nil && execErr.Err == exec.ErrNotFound
}

// ParseFloatOr parses s as a float64, returning def (and no error) when s
// is empty, "N/A", or otherwise unparseable — tool output frequently omits
// fields or prints placeholders for unsupported metrics, and the design
// calls for tolerant coercion rather than hard failures (spec section
// 4.2).
func ParseFloatOr(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") || strings.EqualFold(s, "[N/A]") {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// ParseUintBytesOr parses s (expected as a plain integer byte count) into
// a uint64, returning def on failure or negative input.
func ParseUintBytesOr(s string, def uint64) uint64 {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return def
	}
	return uint64(v)
}

// ClampPct clamps a percentage reading into [0, 100] (spec section 4.2:
// "negative utilization clamps to 0").
func ClampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
