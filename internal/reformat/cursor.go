package reformat

import (
	"fmt"

	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

const positionMismatchTemplateConstant = "working tree position mismatch: expected %s at %s, found %s at %s"

// CursorState names the phase of the migration walk.
type CursorState string

// Migration phases. Failed is reachable from every other phase.
const (
	CursorIdle      CursorState = "idle"
	CursorWalking   CursorState = "walking"
	CursorReplaying CursorState = "replaying"
	CursorAdvancing CursorState = "advancing"
	CursorDone      CursorState = "done"
	CursorFailed    CursorState = "failed"
)

// PositionMismatchError reports an operation attempted while the working tree sits somewhere unexpected.
type PositionMismatchError struct {
	ExpectedState  CursorState
	ExpectedCommit gitrepo.CommitRef
	ActualState    CursorState
	ActualCommit   gitrepo.CommitRef
}

// Error describes the mismatch.
func (mismatchError PositionMismatchError) Error() string {
	return fmt.Sprintf(positionMismatchTemplateConstant,
		mismatchError.ExpectedState, mismatchError.ExpectedCommit.Short(),
		mismatchError.ActualState, mismatchError.ActualCommit.Short())
}

// Cursor records where the single working tree currently sits and which commits have been replayed.
type Cursor struct {
	state              CursorState
	checkedOut         gitrepo.CommitRef
	lastReplayedSource gitrepo.CommitRef
	lastReplayedTarget gitrepo.CommitRef
}

func newCursor() *Cursor {
	return &Cursor{state: CursorIdle}
}

// State returns the current phase.
func (cursor *Cursor) State() CursorState {
	return cursor.state
}

// CheckedOut returns the commit the working tree was last moved to.
func (cursor *Cursor) CheckedOut() gitrepo.CommitRef {
	return cursor.checkedOut
}

// LastReplayed returns the most recent source commit and its replayed counterpart.
func (cursor *Cursor) LastReplayed() (gitrepo.CommitRef, gitrepo.CommitRef) {
	return cursor.lastReplayedSource, cursor.lastReplayedTarget
}

func (cursor *Cursor) moveTo(state CursorState, commit gitrepo.CommitRef) {
	cursor.state = state
	cursor.checkedOut = commit
}

// amended keeps the phase while HEAD moves to the rewritten commit.
func (cursor *Cursor) amended(commit gitrepo.CommitRef) {
	cursor.checkedOut = commit
}

func (cursor *Cursor) advanced(source gitrepo.CommitRef, target gitrepo.CommitRef) {
	cursor.state = CursorAdvancing
	cursor.checkedOut = target
	cursor.lastReplayedSource = source
	cursor.lastReplayedTarget = target
}

func (cursor *Cursor) finish() {
	cursor.state = CursorDone
}

func (cursor *Cursor) fail() {
	cursor.state = CursorFailed
}

func (cursor *Cursor) requirePosition(state CursorState, commit gitrepo.CommitRef) error {
	if cursor.state == state && cursor.checkedOut == commit {
		return nil
	}
	return PositionMismatchError{
		ExpectedState:  state,
		ExpectedCommit: commit,
		ActualState:    cursor.state,
		ActualCommit:   cursor.checkedOut,
	}
}
