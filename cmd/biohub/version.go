package biohub

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// releaseTag overrides the module version, e.g.
// -ldflags "-X github.com/soundprediction/go-biohub/cmd/biohub.releaseTag=v0.3.0".
var releaseTag string

// buildInfo is what the binary knows about the tree it was built from.
type buildInfo struct {
	Release   string
	Revision  string
	Modified  bool
	BuiltAt   string
	GoVersion string
}

func readBuildInfo() buildInfo {
	bi := buildInfo{Release: "(devel)", Revision: "unknown", BuiltAt: "unknown"}
	if info, ok := debug.ReadBuildInfo(); ok {
		bi.GoVersion = info.GoVersion
		if v := info.Main.Version; v != "" {
			bi.Release = v
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				bi.Revision = s.Value
			case "vcs.time":
				bi.BuiltAt = s.Value
			case "vcs.modified":
				bi.Modified = s.Value == "true"
			}
		}
	}
	if releaseTag != "" {
		bi.Release = releaseTag
	}
	return bi
}

func (bi buildInfo) write(w io.Writer) {
	rev := bi.Revision
	if bi.Modified {
		rev += "+dirty"
	}
	fmt.Fprintf(w, "biohub %s (%s)\n", bi.Release, rev)
	fmt.Fprintf(w, "  commit time: %s\n", bi.BuiltAt)
	if bi.GoVersion != "" {
		fmt.Fprintf(w, "  go:          %s\n", bi.GoVersion)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the release and source revision of this build",
	Run: func(cmd *cobra.Command, args []string) {
		readBuildInfo().write(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
