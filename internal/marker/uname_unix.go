//go:build linux || darwin || freebsd || netbsd || openbsd

package marker

import "golang.org/x/sys/unix"

// hostRelease returns the kernel release and version strings reported by uname.
func hostRelease() (release, kernelVersion string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", ""
	}
	return unix.ByteSliceToString(u.Release[:]), unix.ByteSliceToString(u.Version[:])
}
