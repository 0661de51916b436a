package ipc

import (
	"fmt"
	"syscall"
	"unsafe"
)

// CPUCoreMask builds a CPU affinity mask from a slice of core numbers,
// eg: []int{4, 5, 6, 7} pins the engine to cores four through seven.  On
// big.LITTLE boards this keeps inference off the efficiency cores
func CPUCoreMask(cores []int) uintptr {

	var mask uintptr

	for _, core := range cores {
		mask |= 1 << core
	}

	return mask
}

// setProcessAffinity sets the CPU affinity mask of the given process
func setProcessAffinity(pid int, mask uintptr) error {

	_, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETAFFINITY, uintptr(pid),
		unsafe.Sizeof(mask), uintptr(unsafe.Pointer(&mask)))

	if err != 0 {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}
