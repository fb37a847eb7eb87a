package conda

import (
	"path"
	"strings"
)

// Handle is an explicit reference to a located environment. Steps that
// need to run "inside" the environment call its executables by path
// instead of relying on an activated shell.
type Handle struct {
	// Name is the environment name.
	Name string `json:"name"`

	// Prefix is the absolute path of the environment directory.
	Prefix string `json:"prefix"`

	// OS is the operating system the environment lives on. It decides the
	// directory layout (bin/ versus Scripts/).
	OS string `json:"os"`
}

// IsZero reports whether h refers to no environment.
func (h Handle) IsZero() bool {
	return h.Prefix == ""
}

// Python returns the path of the environment's interpreter.
func (h Handle) Python() string {
	if h.OS == "windows" {
		return h.join("python.exe")
	}
	return h.join("bin", "python")
}

// Jupyter returns the path of the environment's jupyter launcher.
func (h Handle) Jupyter() string {
	if h.OS == "windows" {
		return h.BinDir() + `\jupyter.exe`
	}
	return path.Join(h.BinDir(), "jupyter")
}

// BinDir returns the directory holding the environment's console scripts.
func (h Handle) BinDir() string {
	if h.OS == "windows" {
		return h.join("Scripts")
	}
	return h.join("bin")
}

func (h Handle) join(elem ...string) string {
	if h.OS == "windows" {
		return strings.TrimRight(h.Prefix, `\/`) + `\` + strings.Join(elem, `\`)
	}
	return path.Join(append([]string{h.Prefix}, elem...)...)
}
