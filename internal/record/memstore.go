package record

import (
	"sort"
	"sync"
)

// MemStore is an in-memory Store. It keeps records in their encoded form so
// every get and save passes through the codec, and so callers always receive
// independent copies. Used by tests and as the ephemeral "memory" driver.
type MemStore struct {
	mu      sync.Mutex
	cells   map[uint32][]byte
	infos   map[uint16][]byte
	saveErr error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		cells: make(map[uint32][]byte),
		infos: make(map[uint16][]byte),
	}
}

// FailSaves makes every subsequent save return err. Passing nil restores
// normal behavior.
func (s *MemStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// EnvCell fetches the interior cell at a full record address.
func (s *MemStore) EnvCell(id uint32) (*EnvCell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.cells[id]
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeEnvCell(data)
}

// SaveEnvCell writes an interior cell at cell.ID.
func (s *MemStore) SaveEnvCell(cell *EnvCell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := EncodeEnvCell(cell)
	if err != nil {
		return err
	}
	s.cells[cell.ID] = data
	return nil
}

// LandblockInfo fetches a tile's metadata record.
func (s *MemStore) LandblockInfo(tile uint16) (*LandblockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.infos[tile]
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeLandblockInfo(data)
}

// SaveLandblockInfo writes a tile's metadata record.
func (s *MemStore) SaveLandblockInfo(info *LandblockInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := EncodeLandblockInfo(info)
	if err != nil {
		return err
	}
	s.infos[info.Tile] = data
	return nil
}

// InfoTiles lists the tiles holding a metadata record, in ascending order.
func (s *MemStore) InfoTiles() ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiles := make([]uint16, 0, len(s.infos))
	for tile := range s.infos {
		tiles = append(tiles, tile)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i] < tiles[j] })
	return tiles, nil
}

// EnvCellIDs lists the local ids of the stored interior cells of one tile,
// in ascending order. Test helper surface, not part of Store.
func (s *MemStore) EnvCellIDs(tile uint16) []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var locals []uint16
	for id := range s.cells {
		if uint16(id>>16) == tile {
			locals = append(locals, uint16(id&0xFFFF))
		}
	}
	sort.Slice(locals, func(i, j int) bool { return locals[i] < locals[j] })
	return locals
}
