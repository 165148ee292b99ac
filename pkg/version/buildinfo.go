package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

func init() {
	buildInfo = moduleBuildInfo
}

// moduleBuildInfo lists the main module and every dependency linked into
// the binary, following replace directives.
func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, " mod\t%s\t%s\n", info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		fmt.Fprintf(&sb, " dep\t%s\t%s", dep.Path, mod.Version)
		if mod != dep {
			fmt.Fprintf(&sb, "\t=> %s", mod.Path)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
