package dashmask

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"
)

const (
	// RK3588FastCores is the cpu affinity mask of the fast cortex A76 cores 4-7
	RK3588FastCores = uintptr(0b11110000)
	// RK3588SlowCores is the cpu affinity mask of the efficient cortex A55 cores 0-3
	RK3588SlowCores = uintptr(0b00001111)
	// RK3588AllCores is the cpu affinity mask for all cortex A76 and A55 cores 0-7
	RK3588AllCores = uintptr(0b11111111)

	// RK3566AllCores is the cpu affinity mask of all cortex A55 cores 0-3
	RK3566AllCores = uintptr(0b00001111)

	// PiAllCores is the cpu affinity mask of the four cores on the Raspberry
	// Pi 4 (bcm2711) and Pi 5 (bcm2712)
	PiAllCores = uintptr(0b00001111)
	// PiCaptureCore is core 3, left free of the detection workload so the
	// capture loop keeps pace with the camera
	PiCaptureCore = uintptr(0b00001000)
	// PiWorkCores are cores 0-2
	PiWorkCores = uintptr(0b00000111)
)

// CoreType specifies the CPU core type
type CoreType int

const (
	// FastCores are the performance cores, on single cluster SoCs the cores
	// given to the detection workload
	FastCores CoreType = 0
	// SlowCores are the efficiency cores, on single cluster SoCs the core
	// reserved for capture
	SlowCores CoreType = 1
	AllCores  CoreType = 2
)

// coreMaskList defines a list of CPU core masks for lookup by key
var coreMaskList = map[string]map[CoreType]uintptr{
	"rk3566": {
		SlowCores: RK3566AllCores,
		FastCores: RK3566AllCores,
		AllCores:  RK3566AllCores,
	},
	"rk3588": {
		SlowCores: RK3588SlowCores,
		FastCores: RK3588FastCores,
		AllCores:  RK3588AllCores,
	},
	"bcm2711": {
		SlowCores: PiCaptureCore,
		FastCores: PiWorkCores,
		AllCores:  PiAllCores,
	},
	"bcm2712": {
		SlowCores: PiCaptureCore,
		FastCores: PiWorkCores,
		AllCores:  PiAllCores,
	},
}

// SetCPUAffinity sets the CPU Affinity mask of the calling OS thread.  Lock
// the goroutine to its thread with runtime.LockOSThread first if the mask
// should apply to a single goroutine
func SetCPUAffinity(mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity gets the CPU Affinity mask of the calling OS thread
func GetCPUAffinity() (uintptr, error) {

	var mask uintptr

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_GETAFFINITY, 0,
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return 0, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	return mask, nil
}

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// PlatformCoreMask returns the core mask for the given platform string of
// rk3566|rk3588|bcm2711|bcm2712 and core type
func PlatformCoreMask(platform string, ct CoreType) (uintptr, error) {

	platform = strings.ToLower(strings.TrimSpace(platform))

	if masks, ok := coreMaskList[platform]; ok {
		if mask, ok := masks[ct]; ok {
			return mask, nil
		}
	}

	return 0, fmt.Errorf("unknown platform: %s", platform)
}

// SetCPUAffinityByPlatform sets the CPU Affinity mask of the calling OS thread
// to the cores of the given platform and core type
func SetCPUAffinityByPlatform(platform string, ct CoreType) error {

	mask, err := PlatformCoreMask(platform, ct)

	if err != nil {
		return err
	}

	return SetCPUAffinity(mask)
}
