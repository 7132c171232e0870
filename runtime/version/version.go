package version

import "fmt"

const (
	GeneratorMajor = 0
	GeneratorMinor = 1
)

// GeneratorVersion is the version of "packgen generate". It is stamped into
// every generated file.
var GeneratorVersion = SemVer{GeneratorMajor, GeneratorMinor, 0}

type SemVer struct {
	Major int
	Minor int
	Patch int
}

func (v SemVer) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}
