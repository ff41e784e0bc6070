package reformat_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

const (
	fakeHeadReferenceConstant       = "HEAD"
	fakeInjectedFailureTextConstant = "injected failure"
	tabRuleNameConstant             = "tabs"
)

var errInjectedFailure = errors.New(fakeInjectedFailureTextConstant)

type fakeCommit struct {
	parent  gitrepo.CommitRef
	message string
	tree    map[string]string
}

// fakeRepository models one working tree, its index, and an append-only commit graph.
type fakeRepository struct {
	root          string
	commits       map[gitrepo.CommitRef]*fakeCommit
	branches      map[string]gitrepo.CommitRef
	head          gitrepo.CommitRef
	currentBranch string
	worktree      map[string]string
	index         map[string]string
	nextIdentity  int
	mutations     []string
	callCounts    map[string]int
	failOperation string
	failOnCall    int
}

func newFakeRepository(root string) *fakeRepository {
	return &fakeRepository{
		root:       root,
		commits:    map[gitrepo.CommitRef]*fakeCommit{},
		branches:   map[string]gitrepo.CommitRef{},
		worktree:   map[string]string{},
		index:      map[string]string{},
		callCounts: map[string]int{},
	}
}

// commit records a commit whose tree is the parent tree with the given changes; an empty value deletes the path.
func (repository *fakeRepository) commit(parent gitrepo.CommitRef, message string, changes map[string]string) gitrepo.CommitRef {
	tree := map[string]string{}
	if parentCommit, exists := repository.commits[parent]; exists {
		tree = maps.Clone(parentCommit.tree)
	}
	for path, content := range changes {
		if len(content) == 0 {
			delete(tree, path)
			continue
		}
		tree[path] = content
	}
	return repository.store(parent, message, tree)
}

func (repository *fakeRepository) store(parent gitrepo.CommitRef, message string, tree map[string]string) gitrepo.CommitRef {
	repository.nextIdentity++
	identity := gitrepo.CommitRef(fmt.Sprintf("%040x", repository.nextIdentity))
	repository.commits[identity] = &fakeCommit{parent: parent, message: message, tree: tree}
	return identity
}

// checkoutBranch attaches HEAD to branchName and loads its tree.
func (repository *fakeRepository) checkoutBranch(branchName string) {
	repository.currentBranch = branchName
	repository.load(repository.branches[branchName])
}

func (repository *fakeRepository) load(commit gitrepo.CommitRef) {
	repository.head = commit
	repository.worktree = maps.Clone(repository.commits[commit].tree)
	repository.index = maps.Clone(repository.commits[commit].tree)
}

func (repository *fakeRepository) tree(reference string) map[string]string {
	commit, resolveError := repository.resolve(reference)
	if resolveError != nil {
		return nil
	}
	return repository.commits[commit].tree
}

func (repository *fakeRepository) messages(fromExclusive gitrepo.CommitRef, toInclusive gitrepo.CommitRef) []string {
	var collected []string
	for current := toInclusive; current != fromExclusive && len(current) > 0; current = repository.commits[current].parent {
		collected = append(collected, repository.commits[current].message)
	}
	slices.Reverse(collected)
	return collected
}

func (repository *fakeRepository) parentOf(commit gitrepo.CommitRef) gitrepo.CommitRef {
	return repository.commits[commit].parent
}

func (repository *fakeRepository) mutate(operation string) error {
	repository.mutations = append(repository.mutations, operation)
	return repository.observe(operation)
}

func (repository *fakeRepository) observe(operation string) error {
	repository.callCounts[operation]++
	if operation == repository.failOperation && repository.callCounts[operation] == repository.failOnCall {
		return errInjectedFailure
	}
	return nil
}

func (repository *fakeRepository) resolve(reference string) (gitrepo.CommitRef, error) {
	if reference == fakeHeadReferenceConstant {
		return repository.head, nil
	}
	if branchTip, exists := repository.branches[reference]; exists {
		return branchTip, nil
	}
	if _, exists := repository.commits[gitrepo.CommitRef(reference)]; exists {
		return gitrepo.CommitRef(reference), nil
	}
	return "", gitrepo.RepositoryOperationError{Operation: "ResolveCommit", Cause: fmt.Errorf("%w: %s", gitrepo.ErrReferenceNotFound, reference)}
}

func (repository *fakeRepository) ancestors(commit gitrepo.CommitRef) []gitrepo.CommitRef {
	var lineage []gitrepo.CommitRef
	for current := commit; len(current) > 0; current = repository.commits[current].parent {
		lineage = append(lineage, current)
	}
	return lineage
}

func (repository *fakeRepository) RepositoryRoot(context.Context) (string, error) {
	return repository.root, nil
}

func (repository *fakeRepository) Resolve(_ context.Context, reference string) (gitrepo.CommitRef, error) {
	if observeError := repository.observe("Resolve"); observeError != nil {
		return "", observeError
	}
	return repository.resolve(reference)
}

func (repository *fakeRepository) IsCommit(_ context.Context, commit gitrepo.CommitRef) (bool, error) {
	_, exists := repository.commits[commit]
	return exists, nil
}

func (repository *fakeRepository) IsAncestor(_ context.Context, ancestor gitrepo.CommitRef, descendant gitrepo.CommitRef) (bool, error) {
	return slices.Contains(repository.ancestors(descendant), ancestor), nil
}

func (repository *fakeRepository) IsDetachedHead(context.Context) (bool, error) {
	return len(repository.currentBranch) == 0, nil
}

func (repository *fakeRepository) IsWorkingTreeDirty(context.Context) (bool, error) {
	if observeError := repository.observe("IsWorkingTreeDirty"); observeError != nil {
		return false, observeError
	}
	headTree := repository.commits[repository.head].tree
	return !maps.Equal(repository.worktree, headTree) || !maps.Equal(repository.index, headTree), nil
}

func (repository *fakeRepository) MergeBase(_ context.Context, reference gitrepo.CommitRef) (gitrepo.CommitRef, error) {
	referenceCommit, resolveError := repository.resolve(string(reference))
	if resolveError != nil {
		return "", resolveError
	}
	referenceLineage := repository.ancestors(referenceCommit)
	for _, candidate := range repository.ancestors(repository.head) {
		if slices.Contains(referenceLineage, candidate) {
			return candidate, nil
		}
	}
	return "", gitrepo.ErrNoMergeBase
}

func (repository *fakeRepository) CurrentBranchName(context.Context) (string, error) {
	return repository.currentBranch, nil
}

func (repository *fakeRepository) BranchExists(_ context.Context, branchName string) (bool, error) {
	_, exists := repository.branches[branchName]
	return exists, nil
}

func (repository *fakeRepository) ListCommits(_ context.Context, fromExclusive gitrepo.CommitRef, toInclusive gitrepo.CommitRef) ([]gitrepo.CommitRef, error) {
	var commits []gitrepo.CommitRef
	for current := toInclusive; current != fromExclusive; current = repository.commits[current].parent {
		if len(current) == 0 {
			return nil, gitrepo.RangeBoundaryError{FromExclusive: fromExclusive, ToInclusive: toInclusive}
		}
		commits = append(commits, current)
	}
	slices.Reverse(commits)
	return commits, nil
}

func (repository *fakeRepository) Checkout(_ context.Context, commit gitrepo.CommitRef) error {
	if mutateError := repository.mutate("Checkout"); mutateError != nil {
		return mutateError
	}
	if _, exists := repository.commits[commit]; !exists {
		return fmt.Errorf("unknown commit %s", commit)
	}
	repository.currentBranch = ""
	repository.load(commit)
	return nil
}

func (repository *fakeRepository) ChangedFiles(_ context.Context, commit gitrepo.CommitRef) ([]gitrepo.FileChange, error) {
	if observeError := repository.observe("ChangedFiles"); observeError != nil {
		return nil, observeError
	}
	current, exists := repository.commits[commit]
	if !exists {
		return nil, fmt.Errorf("unknown commit %s", commit)
	}
	parentTree := map[string]string{}
	if parentCommit, parentExists := repository.commits[current.parent]; parentExists {
		parentTree = parentCommit.tree
	}

	var changes []gitrepo.FileChange
	for path, content := range current.tree {
		if previous, existed := parentTree[path]; !existed || previous != content {
			changes = append(changes, gitrepo.FileChange{Path: path, Kind: gitrepo.FileChangeModified})
		}
	}
	for path := range parentTree {
		if _, stillPresent := current.tree[path]; !stillPresent {
			changes = append(changes, gitrepo.FileChange{Path: path, Kind: gitrepo.FileChangeDeleted})
		}
	}
	slices.SortFunc(changes, func(first gitrepo.FileChange, second gitrepo.FileChange) int {
		return strings.Compare(first.Path, second.Path)
	})
	return changes, nil
}

func (repository *fakeRepository) PathExists(filePath string) (bool, error) {
	_, exists := repository.worktree[filePath]
	return exists, nil
}

func (repository *fakeRepository) ReadFileAtCommit(_ context.Context, commit gitrepo.CommitRef, filePath string) (gitrepo.RecordedFile, error) {
	if observeError := repository.observe("ReadFileAtCommit"); observeError != nil {
		return gitrepo.RecordedFile{}, observeError
	}
	content, exists := repository.commits[commit].tree[filePath]
	if !exists {
		return gitrepo.RecordedFile{}, fmt.Errorf("%w: %s at %s", gitrepo.ErrFileNotFound, filePath, commit)
	}
	return gitrepo.RecordedFile{Content: []byte(content), Mode: filemode.Regular}, nil
}

func (repository *fakeRepository) WriteWorktreeFile(filePath string, recorded gitrepo.RecordedFile) error {
	if mutateError := repository.mutate("WriteWorktreeFile"); mutateError != nil {
		return mutateError
	}
	repository.worktree[filePath] = string(recorded.Content)
	return nil
}

func (repository *fakeRepository) RemoveFile(_ context.Context, filePath string) error {
	if mutateError := repository.mutate("RemoveFile"); mutateError != nil {
		return mutateError
	}
	delete(repository.worktree, filePath)
	delete(repository.index, filePath)
	return nil
}

func (repository *fakeRepository) AddFile(_ context.Context, filePath string) error {
	if mutateError := repository.mutate("AddFile"); mutateError != nil {
		return mutateError
	}
	content, exists := repository.worktree[filePath]
	if !exists {
		return fmt.Errorf("pathspec %s did not match any files", filePath)
	}
	repository.index[filePath] = content
	return nil
}

func (repository *fakeRepository) AmendCommit(context.Context) error {
	if mutateError := repository.mutate("AmendCommit"); mutateError != nil {
		return mutateError
	}
	amended := repository.commits[repository.head]
	repository.head = repository.store(amended.parent, amended.message, maps.Clone(repository.worktree))
	repository.index = maps.Clone(repository.worktree)
	return nil
}

func (repository *fakeRepository) CommitWithMessageFrom(_ context.Context, source gitrepo.CommitRef) error {
	if mutateError := repository.mutate("CommitWithMessageFrom"); mutateError != nil {
		return mutateError
	}
	repository.head = repository.store(repository.head, repository.commits[source].message, maps.Clone(repository.index))
	return nil
}

func (repository *fakeRepository) CreateBranch(_ context.Context, branchName string) error {
	if mutateError := repository.mutate("CreateBranch"); mutateError != nil {
		return mutateError
	}
	repository.branches[branchName] = repository.head
	repository.currentBranch = branchName
	return nil
}

// tabFormatter expands tabs to four spaces in the working tree of a fakeRepository.
type tabFormatter struct {
	repository *fakeRepository
	suffixes   []string
	failPaths  map[string]bool
}

func newTabFormatter(repository *fakeRepository, suffixes ...string) *tabFormatter {
	return &tabFormatter{repository: repository, suffixes: suffixes, failPaths: map[string]bool{}}
}

func (fileFormatter *tabFormatter) RuleFor(filePath string) (string, bool) {
	for _, suffix := range fileFormatter.suffixes {
		if strings.HasSuffix(filePath, suffix) {
			return tabRuleNameConstant, true
		}
	}
	return "", false
}

func (fileFormatter *tabFormatter) FormatInPlace(_ context.Context, filePath string) (bool, error) {
	if fileFormatter.failPaths[filePath] {
		return false, formatter.FormatterError{Rule: tabRuleNameConstant, Path: filePath, Cause: errInjectedFailure}
	}
	original := fileFormatter.repository.worktree[filePath]
	formatted := strings.ReplaceAll(original, "\t", "    ")
	if formatted == original {
		return false, nil
	}
	fileFormatter.repository.worktree[filePath] = formatted
	return true, nil
}
