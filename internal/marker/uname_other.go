//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package marker

// hostRelease is unknown here; set platform_release and platform_version
// through the environment block of the config file.
func hostRelease() (release, kernelVersion string) {
	return "", ""
}
