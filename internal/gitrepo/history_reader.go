package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

const (
	fileNotFoundMessageConstant             = "file not found at commit"
	noMergeBaseMessageConstant              = "commits share no merge base"
	fileNotFoundTemplateConstant            = "%w: %s at %s"
	mergeCommitErrorTemplateConstant        = "commit %s has %d parents; merge commits are not supported"
	rangeBoundaryErrorTemplateConstant      = "commit %s is not reachable from %s along first parents"
	invalidCommitReferenceMessageConstant   = "full commit hash required"
	openRepositoryOperationNameConstant     = RepositoryOperationName("OpenRepository")
	isCommitOperationNameConstant           = RepositoryOperationName("IsCommit")
	isAncestorOperationNameConstant         = RepositoryOperationName("IsAncestor")
	mergeBaseOperationNameConstant          = RepositoryOperationName("MergeBase")
	listCommitsOperationNameConstant        = RepositoryOperationName("ListCommits")
	changedFilesOperationNameConstant       = RepositoryOperationName("ChangedFiles")
	readFileAtCommitOperationNameConstant   = RepositoryOperationName("ReadFileAtCommit")
	commitParentCountFirstParentConstant    = 1
	commitParentCountMergeThresholdConstant = 2
)

var (
	// ErrFileNotFound indicates a path that does not exist in the requested commit.
	ErrFileNotFound = errors.New(fileNotFoundMessageConstant)
	// ErrNoMergeBase indicates two commits with unrelated histories.
	ErrNoMergeBase = errors.New(noMergeBaseMessageConstant)
)

// MergeCommitError reports a commit with more than one parent inside a walked range.
type MergeCommitError struct {
	Commit      CommitRef
	ParentCount int
}

// Error describes the unsupported merge commit.
func (mergeError MergeCommitError) Error() string {
	return fmt.Sprintf(mergeCommitErrorTemplateConstant, mergeError.Commit.Short(), mergeError.ParentCount)
}

// RangeBoundaryError reports a range whose exclusive start is not a first-parent ancestor of its end.
type RangeBoundaryError struct {
	FromExclusive CommitRef
	ToInclusive   CommitRef
}

// Error describes the unreachable boundary.
func (boundaryError RangeBoundaryError) Error() string {
	return fmt.Sprintf(rangeBoundaryErrorTemplateConstant, boundaryError.FromExclusive.Short(), boundaryError.ToInclusive.Short())
}

// HistoryReader answers read-only history questions by reading the object database with go-git.
// The repository is reopened for every query so objects and references written by the git
// command line in between are observed.
type HistoryReader struct {
	repositoryPath string
}

// NewHistoryReader constructs a HistoryReader rooted at repositoryPath.
func NewHistoryReader(repositoryPath string) (*HistoryReader, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return &HistoryReader{repositoryPath: trimmedPath}, nil
}

// IsCommit reports whether the identifier names a commit object.
func (reader *HistoryReader) IsCommit(executionContext context.Context, commit CommitRef) (bool, error) {
	repository, openError := reader.open(executionContext)
	if openError != nil {
		return false, openError
	}
	if !commit.IsFullHash() {
		return false, nil
	}

	_, lookupError := repository.CommitObject(plumbing.NewHash(string(commit)))
	if lookupError != nil {
		if errors.Is(lookupError, plumbing.ErrObjectNotFound) {
			return false, nil
		}
		return false, RepositoryOperationError{Operation: isCommitOperationNameConstant, Cause: lookupError}
	}
	return true, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. A commit is its own ancestor.
func (reader *HistoryReader) IsAncestor(executionContext context.Context, ancestor CommitRef, descendant CommitRef) (bool, error) {
	repository, openError := reader.open(executionContext)
	if openError != nil {
		return false, openError
	}

	ancestorCommit, ancestorError := lookupCommit(repository, isAncestorOperationNameConstant, ancestor)
	if ancestorError != nil {
		return false, ancestorError
	}
	descendantCommit, descendantError := lookupCommit(repository, isAncestorOperationNameConstant, descendant)
	if descendantError != nil {
		return false, descendantError
	}

	isAncestor, walkError := ancestorCommit.IsAncestor(descendantCommit)
	if walkError != nil {
		return false, RepositoryOperationError{Operation: isAncestorOperationNameConstant, Cause: walkError}
	}
	return isAncestor, nil
}

// MergeBase returns the best common ancestor of two commits.
func (reader *HistoryReader) MergeBase(executionContext context.Context, first CommitRef, second CommitRef) (CommitRef, error) {
	repository, openError := reader.open(executionContext)
	if openError != nil {
		return "", openError
	}

	firstCommit, firstError := lookupCommit(repository, mergeBaseOperationNameConstant, first)
	if firstError != nil {
		return "", firstError
	}
	secondCommit, secondError := lookupCommit(repository, mergeBaseOperationNameConstant, second)
	if secondError != nil {
		return "", secondError
	}

	mergeBases, mergeBaseError := firstCommit.MergeBase(secondCommit)
	if mergeBaseError != nil {
		return "", RepositoryOperationError{Operation: mergeBaseOperationNameConstant, Cause: mergeBaseError}
	}
	if len(mergeBases) == 0 {
		return "", RepositoryOperationError{Operation: mergeBaseOperationNameConstant, Cause: ErrNoMergeBase}
	}

	candidates := make([]string, 0, len(mergeBases))
	for _, mergeBase := range mergeBases {
		candidates = append(candidates, mergeBase.Hash.String())
	}
	sort.Strings(candidates)
	return CommitRef(candidates[0]), nil
}

// ListCommits returns the commits after fromExclusive up to and including toInclusive, oldest first.
// The walk follows first parents and refuses merge commits.
func (reader *HistoryReader) ListCommits(executionContext context.Context, fromExclusive CommitRef, toInclusive CommitRef) ([]CommitRef, error) {
	repository, openError := reader.open(executionContext)
	if openError != nil {
		return nil, openError
	}

	if _, boundaryError := lookupCommit(repository, listCommitsOperationNameConstant, fromExclusive); boundaryError != nil {
		return nil, boundaryError
	}
	currentCommit, currentError := lookupCommit(repository, listCommitsOperationNameConstant, toInclusive)
	if currentError != nil {
		return nil, currentError
	}

	newestFirst := make([]CommitRef, 0)
	for CommitRef(currentCommit.Hash.String()) != fromExclusive {
		if contextError := executionContext.Err(); contextError != nil {
			return nil, RepositoryOperationError{Operation: listCommitsOperationNameConstant, Cause: contextError}
		}

		currentReference := CommitRef(currentCommit.Hash.String())
		parentCount := currentCommit.NumParents()
		if parentCount >= commitParentCountMergeThresholdConstant {
			return nil, RepositoryOperationError{Operation: listCommitsOperationNameConstant, Cause: MergeCommitError{Commit: currentReference, ParentCount: parentCount}}
		}
		if parentCount < commitParentCountFirstParentConstant {
			return nil, RepositoryOperationError{Operation: listCommitsOperationNameConstant, Cause: RangeBoundaryError{FromExclusive: fromExclusive, ToInclusive: toInclusive}}
		}

		newestFirst = append(newestFirst, currentReference)

		parentCommit, parentError := currentCommit.Parent(0)
		if parentError != nil {
			return nil, RepositoryOperationError{Operation: listCommitsOperationNameConstant, Cause: parentError}
		}
		currentCommit = parentCommit
	}

	oldestFirst := make([]CommitRef, len(newestFirst))
	for index, commit := range newestFirst {
		oldestFirst[len(newestFirst)-1-index] = commit
	}
	return oldestFirst, nil
}

// ChangedFiles lists the paths a commit touched relative to its first parent, sorted by path.
// Root commits are compared with the empty tree. Submodule entries are skipped.
func (reader *HistoryReader) ChangedFiles(executionContext context.Context, commit CommitRef) ([]FileChange, error) {
	repository, openError := reader.open(executionContext)
	if openError != nil {
		return nil, openError
	}

	targetCommit, lookupError := lookupCommit(repository, changedFilesOperationNameConstant, commit)
	if lookupError != nil {
		return nil, lookupError
	}

	targetTree, treeError := targetCommit.Tree()
	if treeError != nil {
		return nil, RepositoryOperationError{Operation: changedFilesOperationNameConstant, Cause: treeError}
	}

	var parentTree *object.Tree
	if targetCommit.NumParents() > 0 {
		parentCommit, parentError := targetCommit.Parent(0)
		if parentError != nil {
			return nil, RepositoryOperationError{Operation: changedFilesOperationNameConstant, Cause: parentError}
		}
		parentTree, treeError = parentCommit.Tree()
		if treeError != nil {
			return nil, RepositoryOperationError{Operation: changedFilesOperationNameConstant, Cause: treeError}
		}
	}

	changes, diffError := object.DiffTreeWithOptions(executionContext, parentTree, targetTree, &object.DiffTreeOptions{DetectRenames: false})
	if diffError != nil {
		return nil, RepositoryOperationError{Operation: changedFilesOperationNameConstant, Cause: diffError}
	}

	fileChanges := make([]FileChange, 0, len(changes))
	for _, change := range changes {
		action, actionError := change.Action()
		if actionError != nil {
			return nil, RepositoryOperationError{Operation: changedFilesOperationNameConstant, Cause: actionError}
		}

		switch action {
		case merkletrie.Delete:
			if change.From.TreeEntry.Mode == filemode.Submodule {
				continue
			}
			fileChanges = append(fileChanges, FileChange{Path: change.From.Name, Kind: FileChangeDeleted})
		case merkletrie.Insert, merkletrie.Modify:
			if change.To.TreeEntry.Mode == filemode.Submodule {
				continue
			}
			fileChanges = append(fileChanges, FileChange{Path: change.To.Name, Kind: FileChangeModified})
		}
	}

	sort.SliceStable(fileChanges, func(left int, right int) bool {
		return fileChanges[left].Path < fileChanges[right].Path
	})
	return fileChanges, nil
}

// ReadFileAtCommit returns the content and tree entry mode of a path as recorded in commit.
func (reader *HistoryReader) ReadFileAtCommit(executionContext context.Context, commit CommitRef, filePath string) (RecordedFile, error) {
	trimmedFilePath := strings.TrimSpace(filePath)
	if len(trimmedFilePath) == 0 {
		return RecordedFile{}, InvalidRepositoryInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, openError := reader.open(executionContext)
	if openError != nil {
		return RecordedFile{}, openError
	}

	sourceCommit, lookupError := lookupCommit(repository, readFileAtCommitOperationNameConstant, commit)
	if lookupError != nil {
		return RecordedFile{}, lookupError
	}

	file, fileError := sourceCommit.File(trimmedFilePath)
	if fileError != nil {
		if errors.Is(fileError, object.ErrFileNotFound) {
			return RecordedFile{}, RepositoryOperationError{Operation: readFileAtCommitOperationNameConstant, Cause: fmt.Errorf(fileNotFoundTemplateConstant, ErrFileNotFound, trimmedFilePath, commit.Short())}
		}
		return RecordedFile{}, RepositoryOperationError{Operation: readFileAtCommitOperationNameConstant, Cause: fileError}
	}

	contents, contentsError := file.Contents()
	if contentsError != nil {
		return RecordedFile{}, RepositoryOperationError{Operation: readFileAtCommitOperationNameConstant, Cause: contentsError}
	}
	return RecordedFile{Content: []byte(contents), Mode: file.Mode}, nil
}

func (reader *HistoryReader) open(executionContext context.Context) (*gogit.Repository, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return nil, RepositoryOperationError{Operation: openRepositoryOperationNameConstant, Cause: contextError}
	}

	repository, openError := gogit.PlainOpenWithOptions(reader.repositoryPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if openError != nil {
		return nil, RepositoryOperationError{Operation: openRepositoryOperationNameConstant, Cause: openError}
	}
	return repository, nil
}

func lookupCommit(repository *gogit.Repository, operation RepositoryOperationName, commit CommitRef) (*object.Commit, error) {
	if !commit.IsFullHash() {
		return nil, RepositoryOperationError{Operation: operation, Cause: InvalidRepositoryInputError{FieldName: referenceFieldNameConstant, Message: invalidCommitReferenceMessageConstant}}
	}

	resolvedCommit, lookupError := repository.CommitObject(plumbing.NewHash(string(commit)))
	if lookupError != nil {
		return nil, RepositoryOperationError{Operation: operation, Cause: lookupError}
	}
	return resolvedCommit, nil
}
