package metrics

import "testing"

func TestCollectorRunLifecycle(t *testing.T) {
	c := NewCollector("ingest-pipeline", "run-1")
	c.IncRunStarted()
	c.IncRunCompleted()

	snap := c.Snapshot()
	if snap.RunsStarted != 1 || snap.RunsCompleted != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if snap.Pipeline != "ingest-pipeline" || snap.RunID != "run-1" {
		t.Fatalf("unexpected dimensions: %#v", snap)
	}
}

func TestCollectorNodeDispatch(t *testing.T) {
	c := NewCollector("p", "r")
	c.IncNodeDispatched()
	c.IncNodeDispatched()
	c.IncNodeSucceeded()
	c.IncNodeFailed()
	c.IncNodePanicked()

	snap := c.Snapshot()
	if snap.NodesDispatched != 2 || snap.NodesSucceeded != 1 || snap.NodesFailed != 1 || snap.NodesPanicked != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestCollectorAbsorbPolicyStats(t *testing.T) {
	c := NewCollector("p", "r")
	c.AbsorbPolicyStats(10, 8, 2, map[string]int64{"node_log": 2})

	snap := c.Snapshot()
	if snap.EventsReceived != 10 || snap.EventsPersisted != 8 || snap.EventsDropped != 2 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if snap.DroppedByType["node_log"] != 2 {
		t.Fatalf("unexpected dropped-by-type: %#v", snap.DroppedByType)
	}
}

func TestCollectorNilReceiverSafe(t *testing.T) {
	var c *Collector
	c.IncRunStarted()
	c.IncNodeDispatched()
	c.AbsorbPolicyStats(1, 1, 0, nil)
	if snap := c.Snapshot(); snap.RunsStarted != 0 {
		t.Fatalf("expected zero-value snapshot from nil collector, got %#v", snap)
	}
}
