package issueflow

import (
	_ "embed"
	"strings"
)

//go:embed version.txt
var version string

// Version is the release of the module, read from version.txt.
var Version = strings.TrimSpace(version)
