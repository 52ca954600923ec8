package svn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewtools/postreview/internal/errors"
	"github.com/reviewtools/postreview/internal/scm"
)

const subdirInfo = `Path: .
Working Copy Root Path: /checkout
URL: https://svn.example.net/repo/trunk/project
Repository Root: https://svn.example.net/repo
Repository UUID: 8fcd0279-8db8-4ef2-9e35-c5e6191463ad
`

var workingCopyRange = scm.RevisionSpec{Base: "BASE", Tip: scm.TipWorkingCopy}

func TestDiff_NormalizesHeaderPaths(t *testing.T) {
	t.Parallel()

	raw := "Index: foo.c\n" +
		"===================================================================\n" +
		"--- foo.c\t(revision 4)\n" +
		"+++ foo.c\t(working copy)\n" +
		"@@ -1,3 +1,2 @@\n" +
		" keep\n" +
		"--- dashes in source\n" +
		"+added\n"

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn status --non-interactive", stubResponse{out: "M       foo.c\n"}).
		on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: raw, code: 1})

	c := newTestClient(t, runner, WithWorkingDir("/checkout/sub"))

	got, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{})
	require.NoError(t, err)

	want := "Index: /sub/foo.c\n" +
		"===================================================================\n" +
		"--- /sub/foo.c\t(revision 4)\n" +
		"+++ /sub/foo.c\t(working copy)\n" +
		"@@ -1,3 +1,2 @@\n" +
		" keep\n" +
		"--- dashes in source\n" +
		"+added\n"
	assert.Equal(t, want, got)
}

func TestDiff_ExcludesMatchingFiles(t *testing.T) {
	t.Parallel()

	raw := "Index: foo.c\n" +
		"===================================================================\n" +
		"--- foo.c\t(revision 4)\n" +
		"+++ foo.c\t(working copy)\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n" +
		"Index: secret.key\n" +
		"===================================================================\n" +
		"--- secret.key\t(revision 4)\n" +
		"+++ secret.key\t(working copy)\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n"

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn status --non-interactive", stubResponse{out: "M       foo.c\nM       secret.key\n"}).
		on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: raw, code: 1})

	c := newTestClient(t, runner, WithWorkingDir("/checkout/sub"))

	got, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{
		ExcludePatterns: []string{"*.key"},
	})
	require.NoError(t, err)

	assert.Contains(t, got, "Index: /sub/foo.c")
	assert.NotContains(t, got, "secret.key")
}

func TestDiff_RootedExcludePattern(t *testing.T) {
	t.Parallel()

	raw := "Index: foo.c\n" +
		"===================================================================\n" +
		"--- foo.c\t(revision 4)\n" +
		"+++ foo.c\t(working copy)\n" +
		"@@ -1 +1 @@\n" +
		"-old\n" +
		"+new\n"

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn status --non-interactive", stubResponse{out: "M       foo.c\n"}).
		on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: raw, code: 1})

	c := newTestClient(t, runner, WithWorkingDir("/checkout/sub"))

	// Rooted patterns anchor at the checkout root, not the working dir.
	got, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{
		ExcludePatterns: []string{"/sub/foo.c"},
	})
	require.NoError(t, err)
	assert.NotContains(t, got, "Index:")
}

func TestDiff_RevisionRange(t *testing.T) {
	t.Parallel()

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn diff --diff-cmd=diff --notice-ancestry -r 3:7", stubResponse{out: "", code: 0})

	c := newTestClient(t, runner)

	got, err := c.Diff(t.Context(), scm.RevisionSpec{Base: "3", Tip: "7"}, scm.DiffOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiff_Changelist(t *testing.T) {
	t.Parallel()

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn status --non-interactive --changelist feature", stubResponse{out: "M       bar.c\n"}).
		on("svn diff --diff-cmd=diff --notice-ancestry --changelist feature", stubResponse{out: "", code: 0})

	c := newTestClient(t, runner)

	_, err := c.Diff(t.Context(), scm.RevisionSpec{Base: "BASE", Tip: changelistPrefix + "feature"}, scm.DiffOptions{})
	require.NoError(t, err)
}

func TestDiff_ScheduledWithHistory(t *testing.T) {
	t.Parallel()

	status := "A  +    copied.c\nM       foo.c\n"

	t.Run("refuses to diff", func(t *testing.T) {
		t.Parallel()

		runner := newStubRunner().
			on("svn info --non-interactive", stubResponse{out: subdirInfo}).
			on("svn status --non-interactive", stubResponse{out: status})

		c := newTestClient(t, runner)

		_, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{})
		require.ErrorIs(t, err, errors.ErrScheduledWithHistory)
	})

	t.Run("excluded copies do not block the diff", func(t *testing.T) {
		t.Parallel()

		runner := newStubRunner().
			on("svn info --non-interactive", stubResponse{out: subdirInfo}).
			on("svn status --non-interactive", stubResponse{out: status}).
			on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: "", code: 0})

		c := newTestClient(t, runner)

		_, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{
			ExcludePatterns: []string{"copied.c"},
		})
		require.NoError(t, err)
	})
}

func TestDiff_ShowCopiesAsAdds(t *testing.T) {
	t.Parallel()

	t.Run("supported client", func(t *testing.T) {
		t.Parallel()

		runner := newStubRunner().
			on("svn --version -q", stubResponse{out: "1.14.2\n"}).
			on("svn info --non-interactive", stubResponse{out: subdirInfo}).
			on("svn status --non-interactive", stubResponse{out: ""}).
			on("svn diff --diff-cmd=diff --notice-ancestry --show-copies-as-adds=y", stubResponse{out: "", code: 0})

		c := newTestClient(t, runner, WithShowCopiesAsAdds(true))

		_, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{})
		require.NoError(t, err)
	})

	t.Run("client too old", func(t *testing.T) {
		t.Parallel()

		runner := newStubRunner().
			on("svn --version -q", stubResponse{out: "1.6.17\n"}).
			on("svn info --non-interactive", stubResponse{out: subdirInfo}).
			on("svn status --non-interactive", stubResponse{out: ""}).
			on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: "", code: 0})

		c := newTestClient(t, runner, WithShowCopiesAsAdds(true))

		_, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{})
		require.NoError(t, err)
	})
}

func TestDiff_PropagatesHighExitCodes(t *testing.T) {
	t.Parallel()

	runner := newStubRunner().
		on("svn info --non-interactive", stubResponse{out: subdirInfo}).
		on("svn status --non-interactive", stubResponse{out: ""}).
		on("svn diff --diff-cmd=diff --notice-ancestry", stubResponse{out: "", code: 2})

	c := newTestClient(t, runner)

	_, err := c.Diff(t.Context(), workingCopyRange, scm.DiffOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 2")
}
