package streaming

import (
	"testing"

	"github.com/landforge/server/internal/landblock"
)

func testManager() *Manager {
	return NewManager(landblock.DefaultRegion())
}

func containsTile(tiles []uint16, tile uint16) bool {
	for _, t := range tiles {
		if t == tile {
			return true
		}
	}
	return false
}

func TestSubscribeWindow(t *testing.T) {
	m := testManager()

	// Pose in the middle of tile (0x10, 0x20)
	pose := EditorPose{X: 0x10*landblock.TileSide + 96, Y: 0x20*landblock.TileSide + 96}
	tiles, err := m.Subscribe("conn-1", 1, pose, 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Radius 1 around an interior tile is a 3x3 window
	if len(tiles) != 9 {
		t.Fatalf("Expected 9 tiles, got %d", len(tiles))
	}
	if !containsTile(tiles, landblock.TileID(0x10, 0x20)) {
		t.Error("Window missing center tile")
	}
	if !containsTile(tiles, landblock.TileID(0x0F, 0x1F)) || !containsTile(tiles, landblock.TileID(0x11, 0x21)) {
		t.Error("Window missing corner tiles")
	}
}

func TestSubscribeClampsToRegion(t *testing.T) {
	m := testManager()

	// Pose on the corner tile (0, 0): the window must not wrap negative
	tiles, err := m.Subscribe("conn-1", 1, EditorPose{X: 10, Y: 10}, 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(tiles) != 4 {
		t.Errorf("Expected 4 tiles at the region corner, got %d", len(tiles))
	}
	if !containsTile(tiles, landblock.TileID(0, 0)) {
		t.Error("Window missing corner tile")
	}
}

func TestSubscribeSmallRegion(t *testing.T) {
	region := &landblock.Region{Name: "Pocket", MaxTileX: 1, MaxTileY: 1}
	m := NewManager(region)

	tiles, err := m.Subscribe("conn-1", 1, EditorPose{X: 10, Y: 10}, 5)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// A 2x2 region caps any radius at 4 tiles
	if len(tiles) != 4 {
		t.Errorf("Expected 4 tiles in a 2x2 region, got %d", len(tiles))
	}
}

func TestSubscribeInvalidRadius(t *testing.T) {
	m := testManager()

	if _, err := m.Subscribe("conn-1", 1, EditorPose{}, -1); err == nil {
		t.Error("Expected error for negative radius")
	}
	if _, err := m.Subscribe("conn-1", 1, EditorPose{}, MaxTileRadius+1); err == nil {
		t.Error("Expected error for oversized radius")
	}
}

func TestUpdatePoseDelta(t *testing.T) {
	m := testManager()

	start := EditorPose{X: 0x10*landblock.TileSide + 96, Y: 0x20*landblock.TileSide + 96}
	if _, err := m.Subscribe("conn-1", 1, start, 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Move one tile east: one column leaves, one column enters
	moved := EditorPose{X: 0x11*landblock.TileSide + 96, Y: start.Y}
	delta, err := m.UpdatePose("conn-1", moved)
	if err != nil {
		t.Fatalf("UpdatePose failed: %v", err)
	}

	if len(delta.AddedTiles) != 3 || len(delta.RemovedTiles) != 3 {
		t.Errorf("Expected 3 added / 3 removed tiles, got %d / %d",
			len(delta.AddedTiles), len(delta.RemovedTiles))
	}
	if !containsTile(delta.AddedTiles, landblock.TileID(0x12, 0x20)) {
		t.Error("Delta missing entering column tile")
	}
	if !containsTile(delta.RemovedTiles, landblock.TileID(0x0F, 0x20)) {
		t.Error("Delta missing leaving column tile")
	}
	if len(delta.CurrentTiles) != 9 {
		t.Errorf("Expected 9 current tiles, got %d", len(delta.CurrentTiles))
	}
}

func TestUpdatePoseNoMove(t *testing.T) {
	m := testManager()

	pose := EditorPose{X: 0x10*landblock.TileSide + 96, Y: 0x20*landblock.TileSide + 96}
	if _, err := m.Subscribe("conn-1", 1, pose, 2); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	delta, err := m.UpdatePose("conn-1", pose)
	if err != nil {
		t.Fatalf("UpdatePose failed: %v", err)
	}
	if len(delta.AddedTiles) != 0 || len(delta.RemovedTiles) != 0 {
		t.Errorf("Expected empty delta for an unmoved pose, got +%d -%d",
			len(delta.AddedTiles), len(delta.RemovedTiles))
	}
}

func TestUpdatePoseUnknownConnection(t *testing.T) {
	m := testManager()

	if _, err := m.UpdatePose("ghost", EditorPose{}); err == nil {
		t.Error("Expected error for unknown connection")
	}
}

func TestUnsubscribe(t *testing.T) {
	m := testManager()

	if _, err := m.Subscribe("conn-1", 1, EditorPose{X: 100, Y: 100}, 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	m.Unsubscribe("conn-1")
	if _, err := m.GetSubscription("conn-1"); err == nil {
		t.Error("Expected subscription to be gone after Unsubscribe")
	}

	// Unsubscribing twice must not panic
	m.Unsubscribe("conn-1")
}

func TestSubscribers(t *testing.T) {
	m := testManager()

	center := EditorPose{X: 0x10*landblock.TileSide + 96, Y: 0x20*landblock.TileSide + 96}
	far := EditorPose{X: 0x80*landblock.TileSide + 96, Y: 0x80*landblock.TileSide + 96}

	if _, err := m.Subscribe("conn-a", 1, center, 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := m.Subscribe("conn-b", 2, center, 0); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := m.Subscribe("conn-c", 3, far, 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	subs := m.Subscribers(landblock.TileID(0x10, 0x20))
	if len(subs) != 2 || subs[0] != "conn-a" || subs[1] != "conn-b" {
		t.Errorf("Expected [conn-a conn-b], got %v", subs)
	}

	if subs := m.Subscribers(landblock.TileID(0x01, 0x01)); len(subs) != 0 {
		t.Errorf("Expected no subscribers, got %v", subs)
	}
}
