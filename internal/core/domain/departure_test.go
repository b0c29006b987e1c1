package domain_test

import (
	"testing"
	"time"

	"github.com/mkoskinen/hslproxy/internal/core/domain"
)

func TestSortByEstimate(t *testing.T) {
	base := time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	departures := []domain.Departure{
		{Line: "79", Estimated: base.Add(5 * time.Minute)},
		{Line: "550", Estimated: base},
		{Line: "71", Estimated: base.Add(2 * time.Minute)},
	}

	domain.SortByEstimate(departures)

	want := []string{"550", "71", "79"}
	for i, line := range want {
		if departures[i].Line != line {
			t.Errorf("position %d: expected line %s, got %s", i, line, departures[i].Line)
		}
	}
}

func TestSortByEstimate_StableOnTies(t *testing.T) {
	base := time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	departures := []domain.Departure{
		{Line: "first", Estimated: base},
		{Line: "second", Estimated: base},
	}

	domain.SortByEstimate(departures)

	if departures[0].Line != "first" || departures[1].Line != "second" {
		t.Errorf("tie order changed: [%s %s]", departures[0].Line, departures[1].Line)
	}
}
