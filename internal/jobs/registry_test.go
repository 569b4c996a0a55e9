package jobs

import (
	"testing"
	"time"

	"github.com/mfleet/streamvault/internal/models"
)

func TestSettingsWindow(t *testing.T) {
	if !settingsWindow(nil).IsZero() {
		t.Error("no history row should open the window fully")
	}
	if !settingsWindow(&models.JobHistory{}).IsZero() {
		t.Error("a row without a successful run should open the window fully")
	}

	// settings-monitor reads from its own last successful execution, not
	// from the check-timestamp columns.
	last := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	check := last.Add(time.Hour)
	h := &models.JobHistory{LastExecution: &last, LastSettingsCheck: &check}
	if got := settingsWindow(h); !got.Equal(last) {
		t.Errorf("window = %v, want last execution %v", got, last)
	}
}

func TestConfigWindows(t *testing.T) {
	prov := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	set := prov.Add(time.Minute)
	pol := prov.Add(2 * time.Minute)
	h := &models.JobHistory{
		LastProviderCheck: &prov,
		LastSettingsCheck: &set,
		LastPolicyCheck:   &pol,
	}
	gotProv, gotSet, gotPol := configWindows(h)
	if !gotProv.Equal(prov) || !gotSet.Equal(set) || !gotPol.Equal(pol) {
		t.Errorf("windows = %v %v %v", gotProv, gotSet, gotPol)
	}

	gotProv, gotSet, gotPol = configWindows(nil)
	if !gotProv.IsZero() || !gotSet.IsZero() || !gotPol.IsZero() {
		t.Error("missing history row should open every window fully")
	}
}

func TestProviderJobNameHelpers(t *testing.T) {
	if got := fetchCategoriesJob("p1"); got != "fetch-categories:p1" {
		t.Errorf("fetchCategoriesJob = %q", got)
	}
	if got := fetchMetadataJob("p1"); got != "fetch-metadata:p1" {
		t.Errorf("fetchMetadataJob = %q", got)
	}
}
