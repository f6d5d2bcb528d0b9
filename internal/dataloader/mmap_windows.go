//go:build windows

package dataloader

import (
	"fmt"
	"os"
	"reflect"
	"syscall"
	"unsafe"
)

// mmapFile memory-maps a file for reading (Windows implementation).
//
// Uses unsafe operations which are required for memory mapping. The code
// is safe because addr comes from MapViewOfFile which returns a valid
// memory address for the requested size.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	handle, err := syscall.CreateFileMapping(
		syscall.Handle(f.Fd()),
		nil,
		syscall.PAGE_READONLY,
		uint32(size>>32), //nolint:gosec // G115: split of validated int64 size
		uint32(size),     //nolint:gosec // G115: split of validated int64 size
		nil,
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = syscall.CloseHandle(handle)
	}()

	addr, err := syscall.MapViewOfFile(
		handle,
		syscall.FILE_MAP_READ,
		0,
		0,
		uintptr(size), //nolint:gosec // G115: int64-to-uintptr needed for syscall
	)
	if err != nil {
		return nil, err
	}

	var slice []byte
	//nolint:staticcheck,gosec // SA1019+G103: SliceHeader is the standard mmap pattern on Windows
	header := (*reflect.SliceHeader)(unsafe.Pointer(&slice))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	return slice, nil
}

// munmapFile unmaps a memory-mapped file (Windows implementation).
func munmapFile(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmap empty data")
	}
	//nolint:staticcheck,gosec // SA1019+G103: SliceHeader is the standard mmap pattern on Windows
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	return syscall.UnmapViewOfFile(header.Data)
}

// mlockRegion pins the mapped pages in physical memory. Page locking is
// not wired up on Windows; UseMlockIgnoreErrors degrades gracefully.
func mlockRegion(data []byte) error {
	_ = data
	return fmt.Errorf("page locking not supported on windows")
}

// munlockRegion releases pinned pages.
func munlockRegion(data []byte) error {
	_ = data
	return nil
}
