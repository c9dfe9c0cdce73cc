package provenance

import (
	"runtime/debug"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// Set at build time with
//
//	-ldflags "-X 'github.com/idlab-discover/anomalyfusion-cli/internal/provenance.Version=...' -X '...Commit=...'"
var (
	Version = ""
	Commit  = ""
)

var readBuildInfo = debug.ReadBuildInfo

// BuildStamp identifies the binary that fused and exported a grid. Two BOMs
// with equal digests but different stamps came from different fusion code.
type BuildStamp struct {
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
}

// CurrentBuild reads the stamp of the running binary. Linker flags win over
// the module build info; VCS settings fill in the revision.
func CurrentBuild() BuildStamp {
	s := BuildStamp{Version: Version, Revision: Commit}
	if s.Version == "dev" {
		s.Version = ""
	}
	info, ok := readBuildInfo()
	if !ok {
		return s
	}
	s.GoVersion = info.GoVersion
	if v := info.Main.Version; s.Version == "" && v != "" && v != "(devel)" {
		s.Version = v
	}
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			if s.Revision == "" {
				s.Revision = kv.Value
			}
		case "vcs.modified":
			s.Modified = kv.Value == "true"
		}
	}
	return s
}

// String is the tool version written to the BOM.
func (s BuildStamp) String() string {
	v := s.Version
	if v == "" {
		v = "devel"
		if s.Revision != "" {
			v = "commit-" + shortRevision(s.Revision)
		}
	}
	if s.Modified {
		v += "+dirty"
	}
	return v
}

func (s BuildStamp) properties() []cdx.Property {
	var props []cdx.Property
	if s.Revision != "" {
		props = append(props, cdx.Property{Name: "anomalyfusion:build.revision", Value: s.Revision})
	}
	if s.Modified {
		props = append(props, cdx.Property{Name: "anomalyfusion:build.modified", Value: "true"})
	}
	if s.GoVersion != "" {
		props = append(props, cdx.Property{Name: "anomalyfusion:build.go", Value: s.GoVersion})
	}
	return props
}

func shortRevision(r string) string {
	if len(r) > 12 {
		return r[:12]
	}
	return r
}

// ToolVersion resolves the version recorded in exported provenance.
func ToolVersion() string { return CurrentBuild().String() }
