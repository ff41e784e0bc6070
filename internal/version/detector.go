package version

import (
	"runtime/debug"
	"strings"
)

const (
	unknownVersionFallbackConstant = "unknown"
	buildInfoDevelVersionValue     = "(devel)"
	vcsRevisionSettingKeyConstant  = "vcs.revision"
	vcsModifiedSettingKeyConstant  = "vcs.modified"
	vcsModifiedTrueValueConstant   = "true"
	develVersionPrefixConstant     = "devel-"
	dirtyVersionSuffixConstant     = "-dirty"
	shortRevisionLengthConstant    = 12
)

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Detector resolves the branchfmt version string from build metadata.
type Detector struct {
	buildInfoProvider BuildInfoProvider
}

// NewDetector constructs a Detector reading the supplied provider, or the running binary when nil.
func NewDetector(provider BuildInfoProvider) *Detector {
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}
	return &Detector{buildInfoProvider: provider}
}

// Detect resolves the version of the running binary.
func Detect() string {
	return NewDetector(nil).Version()
}

// Version returns the module version, a devel revision for source builds, or "unknown".
func (detector *Detector) Version() string {
	if detector == nil || detector.buildInfoProvider == nil {
		return unknownVersionFallbackConstant
	}

	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return unknownVersionFallbackConstant
	}

	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) > 0 && trimmedVersion != buildInfoDevelVersionValue {
		return trimmedVersion
	}

	if revisionVersion := versionFromRevision(buildInfo.Settings); len(revisionVersion) > 0 {
		return revisionVersion
	}

	return unknownVersionFallbackConstant
}

func versionFromRevision(settings []debug.BuildSetting) string {
	revision := ""
	modified := false
	for _, setting := range settings {
		switch setting.Key {
		case vcsRevisionSettingKeyConstant:
			revision = strings.TrimSpace(setting.Value)
		case vcsModifiedSettingKeyConstant:
			modified = setting.Value == vcsModifiedTrueValueConstant
		}
	}

	if len(revision) == 0 {
		return ""
	}
	if len(revision) > shortRevisionLengthConstant {
		revision = revision[:shortRevisionLengthConstant]
	}

	versionString := develVersionPrefixConstant + revision
	if modified {
		versionString += dirtyVersionSuffixConstant
	}
	return versionString
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
