package diffparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePatch = `@@ -1,3 +1,4 @@
 package main

+import "fmt"
 func main() {
@@ -10,2 +11,3 @@ func helper() {
-	return nil
+	return fmt.Errorf("boom")
+	return nil
 }`

func TestParseHunks(t *testing.T) {
	hunks, err := ParseHunks(samplePatch)
	require.NoError(t, err)
	require.Len(t, hunks, 2)

	assert.Equal(t, 1, hunks[0].OldStart)
	assert.Equal(t, 3, hunks[0].OldCount)
	assert.Equal(t, 1, hunks[0].NewStart)
	assert.Equal(t, 4, hunks[0].NewCount)
	assert.Equal(t, 4, hunks[0].NewEnd())

	assert.Equal(t, 10, hunks[1].OldStart)
	assert.Equal(t, "func helper() {", hunks[1].Header)
}

func TestParseHunks_Empty(t *testing.T) {
	hunks, err := ParseHunks("")
	require.NoError(t, err)
	assert.Nil(t, hunks)
}

func TestParseHunks_MalformedHeader(t *testing.T) {
	_, err := ParseHunks("@@ not a header @@\n+foo")
	assert.Error(t, err)
}

func TestCoalesceHunks_MergesAdjacent(t *testing.T) {
	hunks, err := ParseHunks(samplePatch)
	require.NoError(t, err)

	merged := CoalesceHunks(hunks, 20, 0)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, merged[0].NewStart)
	assert.Contains(t, merged[0].Content, "\n...\n")
}

const multiHunkMetadataPatch = `diff --git a/x.go b/x.go
index 1111111..2222222 100644
--- a/x.go
+++ b/x.go
@@ -1,2 +1,2 @@
-old
+new
\ No newline at end of file
@@ -10,1 +10,2 @@
+added
\ No newline at end of file`

func TestParseHunks_FiltersMetadataAcrossHunks(t *testing.T) {
	hunks, err := ParseHunks(multiHunkMetadataPatch)
	require.NoError(t, err)
	require.Len(t, hunks, 2)

	for _, h := range hunks {
		assert.NotContains(t, h.Content, "diff --git")
		assert.NotContains(t, h.Content, "index ")
		assert.NotContains(t, h.Content, "--- ")
		assert.NotContains(t, h.Content, "+++ ")
		assert.NotContains(t, h.Content, "No newline at end of file")
	}
	assert.Equal(t, "-old\n+new", hunks[0].Content)
	assert.Equal(t, "+added", hunks[1].Content)
}

func TestCoalesceHunks_RespectsGap(t *testing.T) {
	hunks, err := ParseHunks(samplePatch)
	require.NoError(t, err)

	// Six unchanged lines (5-10) separate the hunks, more than a 5-line gap.
	merged := CoalesceHunks(hunks, 5, 0)
	assert.Len(t, merged, 2)
}

func TestCoalesceHunks_Disabled(t *testing.T) {
	hunks, err := ParseHunks(samplePatch)
	require.NoError(t, err)

	merged := CoalesceHunks(hunks, 0, 1000)
	assert.Equal(t, hunks, merged)
}

func TestValidCommentLines(t *testing.T) {
	valid := ValidCommentLines(samplePatch)

	assert.Contains(t, valid, 1)
	assert.Contains(t, valid, 3) // the " func main() {" context line
	assert.Contains(t, valid, 12)
	assert.NotContains(t, valid, 100)
}
