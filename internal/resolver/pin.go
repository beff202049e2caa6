package resolver

import (
	"github.com/bayleafwalker/pinresolve/internal/requirement"
)

// ExactVersion returns the version req pins exactly, checked against every
// other specifier of req.
func ExactVersion(req requirement.Requirement) (string, error) {
	if req.Locator != "" {
		return "", conflict(ErrLocatorVersion, req.Name, "cannot get version from locator requirement %s", req)
	}
	pin := ""
	for _, spec := range req.Specifiers {
		if spec.IsExact() {
			pin = spec.Version
		}
	}
	if pin == "" {
		return "", conflict(ErrUnpinned, req.Name, "no version pinned for %s", req.Name)
	}
	for _, spec := range req.Specifiers {
		if ok, err := spec.Contains(pin); err != nil || !ok {
			return "", conflict(ErrInconsistentPin, req.Name,
				"%s: pinned version %s does not satisfy %s", req.Name, pin, spec)
		}
	}
	return pin, nil
}
