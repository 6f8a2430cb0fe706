// Package streaming tracks which tiles each connected editor is looking at,
// so the websocket layer can push only the tiles entering or leaving the
// client's view window.
package streaming

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/landforge/server/internal/landblock"
)

// MaxTileRadius caps the subscription window; a radius this large already
// covers the whole region axis.
const MaxTileRadius = landblock.TileAxisCount

// Manager coordinates server-driven tile subscriptions keyed by connection.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	region        *landblock.Region
}

// Subscription tracks an individual client's tile window.
type Subscription struct {
	ConnID     string
	UserID     int64
	Pose       EditorPose
	TileRadius int
	Tiles      []uint16
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EditorPose describes the editor camera position for streaming decisions.
type EditorPose struct {
	X float32 `json:"x"` // World X in units
	Y float32 `json:"y"` // World Y in units
}

// TileDelta describes server-evaluated tile window changes.
type TileDelta struct {
	ConnID       string
	AddedTiles   []uint16
	RemovedTiles []uint16
	CurrentTiles []uint16
}

// NewManager builds a streaming manager scoped to a region. The region caps
// the tile window to tiles that actually exist.
func NewManager(region *landblock.Region) *Manager {
	return &Manager{
		subscriptions: make(map[string]*Subscription),
		region:        region,
	}
}

// Subscribe registers a tile window for a connection and returns the initial
// tile set. Re-subscribing replaces the previous window.
func (m *Manager) Subscribe(connID string, userID int64, pose EditorPose, tileRadius int) ([]uint16, error) {
	if tileRadius < 0 {
		return nil, fmt.Errorf("tile_radius must not be negative")
	}
	if tileRadius > MaxTileRadius {
		return nil, fmt.Errorf("tile_radius cannot exceed %d", MaxTileRadius)
	}

	tiles := m.computeWindow(pose, tileRadius)
	now := time.Now()

	m.mu.Lock()
	m.subscriptions[connID] = &Subscription{
		ConnID:     connID,
		UserID:     userID,
		Pose:       pose,
		TileRadius: tileRadius,
		Tiles:      tiles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.mu.Unlock()

	return tiles, nil
}

// UpdatePose recomputes the connection's tile window and returns the delta.
func (m *Manager) UpdatePose(connID string, pose EditorPose) (*TileDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subscription, ok := m.subscriptions[connID]
	if !ok {
		return nil, fmt.Errorf("connection %s has no tile subscription", connID)
	}

	newTiles := m.computeWindow(pose, subscription.TileRadius)
	added, removed := diffTileSets(subscription.Tiles, newTiles)

	subscription.Pose = pose
	subscription.Tiles = newTiles
	subscription.UpdatedAt = time.Now()

	return &TileDelta{
		ConnID:       connID,
		AddedTiles:   added,
		RemovedTiles: removed,
		CurrentTiles: newTiles,
	}, nil
}

// Unsubscribe drops the connection's window; safe to call for unknown ids.
func (m *Manager) Unsubscribe(connID string) {
	m.mu.Lock()
	delete(m.subscriptions, connID)
	m.mu.Unlock()
}

// GetSubscription retrieves a connection's subscription.
func (m *Manager) GetSubscription(connID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subscription, ok := m.subscriptions[connID]
	if !ok {
		return nil, fmt.Errorf("connection %s has no tile subscription", connID)
	}
	return subscription, nil
}

// Subscribers returns the connection ids currently watching a tile. The
// websocket hub uses this to scope change broadcasts.
func (m *Manager) Subscribers(tile uint16) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []string
	for id, sub := range m.subscriptions {
		for _, t := range sub.Tiles {
			if t == tile {
				conns = append(conns, id)
				break
			}
		}
	}
	sort.Strings(conns)
	return conns
}

// computeWindow lists the tiles within a square Chebyshev radius of the
// pose, clamped to the region extent and sorted by tile id.
func (m *Manager) computeWindow(pose EditorPose, tileRadius int) []uint16 {
	center := landblock.TileAt(pose.X, pose.Y)
	centerX, centerY := landblock.TileCoords(center)

	minX := int(centerX) - tileRadius
	maxX := int(centerX) + tileRadius
	minY := int(centerY) - tileRadius
	maxY := int(centerY) + tileRadius

	maxTileX, maxTileY := landblock.TileAxisCount-1, landblock.TileAxisCount-1
	if m.region != nil {
		maxTileX, maxTileY = int(m.region.MaxTileX), int(m.region.MaxTileY)
	}

	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > maxTileX {
		maxX = maxTileX
	}
	if maxY > maxTileY {
		maxY = maxTileY
	}

	var tiles []uint16
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, landblock.TileID(uint8(x), uint8(y)))
		}
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i] < tiles[j] })
	return tiles
}

func diffTileSets(previous, next []uint16) (added []uint16, removed []uint16) {
	prevSet := make(map[uint16]struct{}, len(previous))
	nextSet := make(map[uint16]struct{}, len(next))

	for _, id := range previous {
		prevSet[id] = struct{}{}
	}
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, exists := prevSet[id]; !exists {
			added = append(added, id)
		}
	}
	for _, id := range previous {
		if _, exists := nextSet[id]; !exists {
			removed = append(removed, id)
		}
	}
	return
}
