package app

import (
	"testing"

	"github.com/mfleet/streamvault/internal/models"
)

func TestContext_actionQueueDrainsAtomically(t *testing.T) {
	c := New(nil, nil, nil, nil, nil, nil)
	c.EnqueueProviderAction("p1", models.ActionDisabled)
	c.EnqueueProviderAction("p1", models.ActionEnabled)
	c.EnqueueProviderAction("p2", models.ActionDeleted)

	drained := c.GetAndClearProviderActionQueue()
	if len(drained["p1"]) != 2 || drained["p1"][0] != models.ActionDisabled || drained["p1"][1] != models.ActionEnabled {
		t.Errorf("p1 queue = %v", drained["p1"])
	}
	if len(drained["p2"]) != 1 {
		t.Errorf("p2 queue = %v", drained["p2"])
	}
	if again := c.GetAndClearProviderActionQueue(); len(again) != 0 {
		t.Errorf("second drain = %v", again)
	}
}

func TestContext_consecutiveDuplicatesCollapse(t *testing.T) {
	c := New(nil, nil, nil, nil, nil, nil)
	c.EnqueueProviderAction("p1", models.ActionCategoriesChanged)
	c.EnqueueProviderAction("p1", models.ActionCategoriesChanged)
	c.EnqueueProviderAction("p1", models.ActionDisabled)
	c.EnqueueProviderAction("p1", models.ActionCategoriesChanged)

	q := c.GetAndClearProviderActionQueue()["p1"]
	if len(q) != 3 {
		t.Errorf("queue = %v, want duplicates collapsed", q)
	}
}
