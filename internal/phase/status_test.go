package phase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"one failure among passes", []Status{Passed, Failed, Passed}, Failed},
		{"error dominates failure", []Status{Passed, Error, Failed}, Error},
		{"all passed", []Status{Passed, Passed}, Passed},
		{"all skipped is neutral", []Status{Skipped, Skipped, Skipped}, Skipped},
		{"skipped does not mask pass", []Status{Skipped, Passed}, Passed},
		{"skipped does not mask failure", []Status{Failed, Skipped}, Failed},
		{"not started is neutral", []Status{NotStarted, Passed}, Passed},
		{"empty is neutral", nil, Skipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.statuses...))
		})
	}
}

func TestAggregate_NeverBetterThanWorstChild(t *testing.T) {
	all := []Status{Passed, Failed, Error, Skipped}
	for _, a := range all {
		for _, b := range all {
			got := Aggregate(a, b)
			assert.GreaterOrEqual(t, got.rank(), a.rank(), "Aggregate(%s,%s)=%s", a, b, got)
			assert.GreaterOrEqual(t, got.rank(), b.rank(), "Aggregate(%s,%s)=%s", a, b, got)
		}
	}
}

func TestAggregate_Nested(t *testing.T) {
	inner := Aggregate(Passed, Skipped)
	outer := Aggregate(inner, Aggregate(Skipped), Failed)
	assert.Equal(t, Failed, outer)
}

func TestStatus_Passing(t *testing.T) {
	assert.True(t, Passed.Passing())
	assert.True(t, Skipped.Passing())
	assert.False(t, Failed.Passing())
	assert.False(t, Error.Passing())
}

func TestStatus_TextRoundTrip(t *testing.T) {
	for s := NotStarted; s <= Skipped; s++ {
		text, err := s.MarshalText()
		assert.NoError(t, err)
		var got Status
		assert.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
}

func TestStatus_UnmarshalTextRejectsUnknown(t *testing.T) {
	got := Failed
	err := got.UnmarshalText([]byte("Interrupted"))
	assert.ErrorContains(t, err, `unknown status "Interrupted"`)
	assert.Equal(t, Failed, got, "an unknown name must not overwrite the status")

	assert.NoError(t, got.UnmarshalText([]byte("skipped")))
	assert.Equal(t, Skipped, got)

	var r struct {
		Status Status `json:"status"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"status":"Bogus"}`), &r))
}
