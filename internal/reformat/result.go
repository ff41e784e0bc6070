package reformat

import (
	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

// CommitOutcome describes how one branch commit was migrated.
type CommitOutcome struct {
	SourceCommit   gitrepo.CommitRef
	AmendedCommit  gitrepo.CommitRef
	ReplayedCommit gitrepo.CommitRef
	Amended        bool
	FormattedFiles []string
	SkippedFiles   []string
}

// MigrationResult captures the observable outcome of a completed migration.
type MigrationResult struct {
	DestinationBranch string
	FinalTip          gitrepo.CommitRef
	Commits           []CommitOutcome
}

// AmendedCount reports how many commits required formatting changes.
func (result MigrationResult) AmendedCount() int {
	amended := 0
	for _, outcome := range result.Commits {
		if outcome.Amended {
			amended++
		}
	}
	return amended
}

// PlannedCommit lists the files a commit touches that a migration would format or delete.
type PlannedCommit struct {
	Commit        gitrepo.CommitRef
	EligibleFiles []string
	DeletedFiles  []string
}

// DryRunReport describes a migration without performing it.
type DryRunReport struct {
	DestinationBranch string
	AfterBoundary     gitrepo.CommitRef
	Commits           []PlannedCommit
}
