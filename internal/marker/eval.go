package marker

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/bayleafwalker/pinresolve/internal/version"
)

// Environment maps canonical attribute names to their values.
type Environment map[string]string

// With returns a copy of env with name bound to value.
func (env Environment) With(name, value string) Environment {
	out := make(Environment, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[name] = value
	return out
}

// UndefinedNameError is returned when a marker reads an attribute the
// environment does not define.
type UndefinedNameError struct {
	Name string
}

func (e *UndefinedNameError) Error() string {
	return fmt.Sprintf("marker attribute %q is not defined", e.Name)
}

// DefaultPythonVersion is the interpreter version assumed when none is configured.
const DefaultPythonVersion = "3.12"

// DefaultEnvironment describes the host platform and the given interpreter
// version ("3.12" or "3.12.1"). platform_release and platform_version come
// from uname where available and are empty elsewhere.
func DefaultEnvironment(pythonVersion string) Environment {
	full := pythonVersion
	parts := strings.Split(pythonVersion, ".")
	if len(parts) == 2 {
		full = pythonVersion + ".0"
	}
	short := pythonVersion
	if len(parts) > 2 {
		short = parts[0] + "." + parts[1]
	}

	osName := "posix"
	sysPlatform := runtime.GOOS
	system := map[string]string{"linux": "Linux", "darwin": "Darwin", "windows": "Windows", "freebsd": "FreeBSD"}[runtime.GOOS]
	if runtime.GOOS == "windows" {
		osName = "nt"
		sysPlatform = "win32"
	}

	machine := runtime.GOARCH
	switch runtime.GOARCH {
	case "amd64":
		machine = "x86_64"
		if runtime.GOOS == "windows" {
			machine = "AMD64"
		}
	case "arm64":
		if runtime.GOOS == "linux" {
			machine = "aarch64"
		}
	case "386":
		machine = "i686"
	}

	release, kernelVersion := hostRelease()
	return Environment{
		"os_name":                        osName,
		"sys_platform":                   sysPlatform,
		"platform_machine":               machine,
		"platform_python_implementation": "CPython",
		"platform_release":               release,
		"platform_system":                system,
		"platform_version":               kernelVersion,
		"python_version":                 short,
		"python_full_version":            full,
		"implementation_name":            "cpython",
		"implementation_version":         full,
	}
}

type node interface {
	eval(env Environment) (bool, error)
	variables(into map[string]struct{})
}

type boolNode struct {
	and         bool
	left, right node
}

func (n *boolNode) eval(env Environment) (bool, error) {
	l, errL := n.left.eval(env)
	r, errR := n.right.eval(env)
	if errL != nil {
		return false, errL
	}
	if errR != nil {
		return false, errR
	}
	if n.and {
		return l && r, nil
	}
	return l || r, nil
}

func (n *boolNode) variables(into map[string]struct{}) {
	n.left.variables(into)
	n.right.variables(into)
}

type operand struct {
	variable string
	literal  string
	isVar    bool
}

func (o operand) value(env Environment) (string, error) {
	if !o.isVar {
		return o.literal, nil
	}
	v, ok := env[o.variable]
	if !ok {
		return "", &UndefinedNameError{Name: o.variable}
	}
	return v, nil
}

type compareNode struct {
	lhs, rhs operand
	op       string
}

var extraSeparatorRE = regexp.MustCompile(`[-_.]+`)

func (n *compareNode) eval(env Environment) (bool, error) {
	lv, err := n.lhs.value(env)
	if err != nil {
		return false, err
	}
	rv, err := n.rhs.value(env)
	if err != nil {
		return false, err
	}
	if n.lhs.variable == ExtraName || n.rhs.variable == ExtraName {
		lv = strings.ToLower(extraSeparatorRE.ReplaceAllString(lv, "-"))
		rv = strings.ToLower(extraSeparatorRE.ReplaceAllString(rv, "-"))
	}

	switch n.op {
	case "in":
		return strings.Contains(rv, lv), nil
	case "not in":
		return !strings.Contains(rv, lv), nil
	}

	if spec, err := version.ParseSpecifier(n.op + rv); err == nil {
		if ok, err := spec.Contains(lv); err == nil {
			return ok, nil
		}
	}

	switch n.op {
	case "==":
		return lv == rv, nil
	case "!=":
		return lv != rv, nil
	case "<":
		return lv < rv, nil
	case "<=":
		return lv <= rv, nil
	case ">":
		return lv > rv, nil
	case ">=":
		return lv >= rv, nil
	}
	return false, fmt.Errorf("%w: %q %s %q is not a valid version comparison", ErrInvalidMarker, lv, n.op, rv)
}

func (n *compareNode) variables(into map[string]struct{}) {
	for _, o := range []operand{n.lhs, n.rhs} {
		if o.isVar {
			into[o.variable] = struct{}{}
		}
	}
}
