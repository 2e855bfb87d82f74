package cmd

import (
	"fmt"
	"runtime/debug"
)

// Version prints the module version and VCS revision baked into the
// binary by the Go toolchain.
func Version() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("inkwell (unknown build)")
		return
	}

	version := info.Main.Version
	if version == "" || version == "(devel)" {
		version = "devel"
	}

	revision := ""
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			revision = setting.Value
			break
		}
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}

	if revision != "" {
		fmt.Printf("inkwell %s (%s, %s)\n", version, revision, info.GoVersion)
	} else {
		fmt.Printf("inkwell %s (%s)\n", version, info.GoVersion)
	}
}
