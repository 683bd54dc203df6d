package models

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const surveyYAML = `
title: Sentence similarity
prompt: How similar are these two sentences?
instructions:
  - heading: You will rate pairs of sentences.
    details: ["46 sentences", "1035 pairs"]
    confirm: I understand.
  - heading: This is not a personality test.
    confirm: I understand.
rating_scale:
  - {value: 1, label: Totally different}
  - {value: 2, label: Very different}
  - {value: 3, label: Rather different}
  - {value: 4, label: Similar}
  - {value: 5, label: Rather similar}
  - {value: 6, label: Very similar}
  - {value: 7, label: Totally similar}
`

func TestLoadSurveyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(surveyYAML), 0o644))

	content, err := LoadSurveyContent(path)
	require.NoError(t, err)
	assert.Len(t, content.Instructions, 2)
	assert.Len(t, content.RatingScale, 7)
	assert.Equal(t, "Similar", content.RatingScale[3].Label)

	t.Run("short scale rejected", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("instructions: [{heading: x}]\nrating_scale: [{value: 1, label: a}]\n"), 0o644))
		_, err := LoadSurveyContent(bad)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSurveyContent(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestShuffledOrderIsPermutation(t *testing.T) {
	order := ShuffledOrder(1035, rand.New(rand.NewSource(42)))
	require.Len(t, order, 1035)

	sorted := append([]int64(nil), order...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, CanonicalOrder(1035), sorted)
}
