package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	in := time.Date(2024, 5, 1, 23, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Day(in))
	assert.True(t, SameDay(in, time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())

	_, err = ParseDay("01/05/2024")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestErrorKinds(t *testing.T) {
	err := NotFound("slot", "s1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "not found: slot s1", err.Error())

	wrapped := &Error{Kind: ErrConflict, Entity: "driver", ID: "d1", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Message: "already dispatched"}
	assert.Equal(t, "conflict: driver d1 on 2024-05-01: already dispatched", wrapped.Error())
}

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "REF1", NormalizeReference("  ref1 "))
	tr := NewTransport("abc-9")
	assert.Equal(t, "ABC-9", tr.Reference)
	assert.Equal(t, StatusPlanned, tr.Status)
	assert.True(t, tr.Active())
}

func TestCutInfoCovers(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := CutInfo{StartDate: start}
	assert.False(t, c.Covers(start.AddDate(0, 0, -1)))
	assert.True(t, c.Covers(start.AddDate(0, 0, 30)))

	end := start.AddDate(0, 0, 2)
	c.EndDate = &end
	assert.True(t, c.Covers(end))
	assert.False(t, c.Covers(end.AddDate(0, 0, 1)))
}

func TestCallerCanPlan(t *testing.T) {
	assert.True(t, Caller{Role: RolePlanner}.CanPlan())
	assert.True(t, System.CanPlan())
	err := Caller{Role: RoleViewer}.RequirePlanner()
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransportCloneIsDeep(t *testing.T) {
	tr := NewTransport("R")
	tr.Notes = []Note{{Text: "a"}}
	c := tr.Clone()
	c.Notes[0].Text = "b"
	assert.Equal(t, "a", tr.Notes[0].Text)
}
