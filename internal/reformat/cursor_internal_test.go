package reformat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
)

const (
	cursorSourceCommitConstant    = gitrepo.CommitRef("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	cursorTargetCommitConstant    = gitrepo.CommitRef("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	cursorWrongStateCaseConstant  = "wrong_state"
	cursorWrongCommitCaseConstant = "wrong_commit"
	cursorMatchingCaseConstant    = "matching_position"
)

func TestCursorRequirePosition(testInstance *testing.T) {
	testCases := []struct {
		name          string
		state         CursorState
		commit        gitrepo.CommitRef
		expectedError bool
	}{
		{name: cursorMatchingCaseConstant, state: CursorWalking, commit: cursorSourceCommitConstant},
		{name: cursorWrongStateCaseConstant, state: CursorReplaying, commit: cursorSourceCommitConstant, expectedError: true},
		{name: cursorWrongCommitCaseConstant, state: CursorWalking, commit: cursorTargetCommitConstant, expectedError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			cursor := newCursor()
			cursor.moveTo(CursorWalking, cursorSourceCommitConstant)

			positionError := cursor.requirePosition(testCase.state, testCase.commit)
			if !testCase.expectedError {
				require.NoError(testInstance, positionError)
				return
			}

			var mismatchError PositionMismatchError
			require.ErrorAs(testInstance, positionError, &mismatchError)
			require.Equal(testInstance, testCase.state, mismatchError.ExpectedState)
			require.Equal(testInstance, CursorWalking, mismatchError.ActualState)
			require.Equal(testInstance, cursorSourceCommitConstant, mismatchError.ActualCommit)
		})
	}
}

func TestCursorTracksReplayProgress(testInstance *testing.T) {
	cursor := newCursor()
	require.Equal(testInstance, CursorIdle, cursor.State())

	cursor.moveTo(CursorReplaying, cursorTargetCommitConstant)
	cursor.advanced(cursorSourceCommitConstant, cursorTargetCommitConstant)
	source, target := cursor.LastReplayed()
	require.Equal(testInstance, cursorSourceCommitConstant, source)
	require.Equal(testInstance, cursorTargetCommitConstant, target)
	require.Equal(testInstance, CursorAdvancing, cursor.State())
	require.Equal(testInstance, cursorTargetCommitConstant, cursor.CheckedOut())

	cursor.fail()
	require.Equal(testInstance, CursorFailed, cursor.State())
}

func TestReplayErrorDescribesProgress(testInstance *testing.T) {
	cause := errors.New("disk full")

	initialError := ReplayError{Stage: StageAmend, SourceCommit: cursorSourceCommitConstant, Cause: cause}
	require.Equal(testInstance, "replay of aaaaaaaaaaaa failed during amend: disk full", initialError.Error())
	require.ErrorIs(testInstance, initialError, cause)

	progressError := ReplayError{
		Stage:              StageCommit,
		SourceCommit:       cursorSourceCommitConstant,
		LastReplayedSource: cursorSourceCommitConstant,
		LastReplayedTarget: cursorTargetCommitConstant,
		Cause:              cause,
	}
	require.Equal(testInstance, "replay of aaaaaaaaaaaa failed during commit (last replayed aaaaaaaaaaaa as bbbbbbbbbbbb): disk full", progressError.Error())

	branchError := ReplayError{Stage: StageCreateBranch, Cause: cause}
	require.Equal(testInstance, "replay of branch failed during create_branch: disk full", branchError.Error())
}

func TestCommandConfigurationSanitize(testInstance *testing.T) {
	sanitized := CommandConfiguration{BranchSuffix: "  ", Formatters: nil}.Sanitize()
	require.Equal(testInstance, DefaultBranchSuffix, sanitized.BranchSuffix)
	require.Equal(testInstance, formatter.DefaultRules(), sanitized.Formatters)

	custom := CommandConfiguration{
		BranchSuffix: " -fmt ",
		Formatters:   []formatter.RuleConfiguration{{Kind: " YAML ", Suffixes: []string{" .yml ", ""}}},
	}.Sanitize()
	require.Equal(testInstance, "-fmt", custom.BranchSuffix)
	require.Len(testInstance, custom.Formatters, 1)
	require.Equal(testInstance, formatter.KindYAML, custom.Formatters[0].Kind)
	require.Equal(testInstance, []string{".yml"}, custom.Formatters[0].Suffixes)
	require.Equal(testInstance, 2, custom.Formatters[0].Indent)
}
