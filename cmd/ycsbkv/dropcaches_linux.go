package main

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// dropCaches flushes dirty pages and asks the kernel to drop the page
// cache, dentries and inodes so the next engine starts cold.
func dropCaches() error {
	unix.Sync()
	runtime.GC()

	err := os.WriteFile("/proc/sys/vm/drop_caches", []byte{'3'}, 0o644)
	return errors.Wrap(err, "write /proc/sys/vm/drop_caches")
}
