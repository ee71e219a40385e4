package arch

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Architecture is a kernel source architecture, the value passed as ARCH= to
// kbuild and the directory name under arch/ in a source tree.
type Architecture string

const (
	X86     Architecture = "x86"
	ARM     Architecture = "arm"
	ARM64   Architecture = "arm64"
	PowerPC Architecture = "powerpc"
	MIPS    Architecture = "mips"
	S390    Architecture = "s390"
	RISCV   Architecture = "riscv"
)

// Supported returns the architectures with a known compressed image name.
func Supported() []Architecture {
	return []Architecture{
		X86,
		ARM,
		ARM64,
		PowerPC,
		MIPS,
		S390,
		RISCV,
	}
}

// IsValid reports whether a matches a supported architecture value.
func (a Architecture) IsValid() bool {
	switch a {
	case X86, ARM, ARM64, PowerPC, MIPS, S390, RISCV:
		return true
	default:
		return false
	}
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// CompressedImage returns the file name kbuild gives the compressed boot
// image for the architecture. Unknown architectures fall back to zImage.
func (a Architecture) CompressedImage() string {
	switch a {
	case X86:
		return "bzImage"
	case ARM64, RISCV:
		return "Image.gz"
	case S390:
		return "bzImage"
	case PowerPC:
		return "zImage"
	case MIPS:
		return "vmlinuz"
	default:
		return "zImage"
	}
}

// BootDir is the path, relative to the source tree, where kbuild leaves
// boot images.
func (a Architecture) BootDir() string {
	return "arch/" + string(a) + "/boot"
}

// Parse returns the canonical Architecture for the provided string or an error if unsupported.
func Parse(value string) (Architecture, error) {
	if arch := Normalize(value); arch != "" {
		return arch, nil
	}
	return "", fmt.Errorf("unsupported architecture %q (supported: %s)", value, strings.Join(supportedStrings(), ", "))
}

// Resolve is like Parse but passes unknown non-empty values through
// unchanged, so trees with architectures this package does not list can
// still be built.
func Resolve(value string) Architecture {
	if arch := Normalize(value); arch != "" {
		return arch
	}
	return Architecture(strings.TrimSpace(value))
}

// Normalize maps a possibly ambiguous string, including userland and Go
// spellings, into a kernel Architecture. Returns "" when the string cannot be
// normalized.
func Normalize(value string) Architecture {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case string(X86), "x86_64", "x86-64", "amd64", "i386", "i486", "i586", "i686", "386":
		return X86
	case string(ARM64), "aarch64":
		return ARM64
	case string(ARM), "armv7", "armv7l", "armhf", "armel":
		return ARM
	case string(PowerPC), "ppc", "ppc64", "ppc64le", "ppc64el", "powerpc64", "powerpc64le":
		return PowerPC
	case string(MIPS), "mipsel", "mips64", "mips64el", "mips64le":
		return MIPS
	case string(S390), "s390x":
		return S390
	case string(RISCV), "riscv64":
		return RISCV
	default:
		return ""
	}
}

// Host returns the kernel architecture of the machine running the tool.
func Host() Architecture {
	return Normalize(runtime.GOARCH)
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}
