package gitrepo

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
)

const (
	commitReferenceLengthConstant      = 40
	shortCommitReferenceLengthConstant = 12
)

// CommitRef is a full hexadecimal commit identifier.
type CommitRef string

// String returns the identifier.
func (reference CommitRef) String() string {
	return string(reference)
}

// Short returns an abbreviated identifier for log and console output.
func (reference CommitRef) Short() string {
	if len(reference) <= shortCommitReferenceLengthConstant {
		return string(reference)
	}
	return string(reference[:shortCommitReferenceLengthConstant])
}

// IsFullHash reports whether the identifier is a 40 character hexadecimal hash.
func (reference CommitRef) IsFullHash() bool {
	if len(reference) != commitReferenceLengthConstant {
		return false
	}
	for _, character := range string(reference) {
		if !strings.ContainsRune("0123456789abcdef", character) {
			return false
		}
	}
	return true
}

// FileChangeKind classifies a path change relative to the first parent.
type FileChangeKind string

// Supported file change kinds.
const (
	FileChangeModified FileChangeKind = "modified"
	FileChangeDeleted  FileChangeKind = "deleted"
)

// FileChange describes one path touched by a commit. Added files are reported as modified.
type FileChange struct {
	Path string
	Kind FileChangeKind
}

// IsDeleted reports whether the commit removed the path.
func (change FileChange) IsDeleted() bool {
	return change.Kind == FileChangeDeleted
}

// RecordedFile is the content and tree entry mode of a path at one commit.
// The content of a symbolic link is its target.
type RecordedFile struct {
	Content []byte
	Mode    filemode.FileMode
}

// IsSymlink reports whether the entry is a symbolic link.
func (file RecordedFile) IsSymlink() bool {
	return file.Mode == filemode.Symlink
}

// IsExecutable reports whether the entry carries the executable bit.
func (file RecordedFile) IsExecutable() bool {
	return file.Mode == filemode.Executable
}
