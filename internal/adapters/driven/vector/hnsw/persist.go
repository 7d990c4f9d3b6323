package hnsw

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/coder/hnsw"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
)

const (
	fileMagic     = "RCLVIDX\x00"
	formatVersion = uint32(1)
)

var errBadHeader = errors.New("bad index header")

// header precedes the exported graph in the index file.
type header struct {
	Dimension  uint32
	Capacity   uint32
	NextSlot   uint64
	Slots      []int
	Tombstones []int
}

// Persist writes the index to its file atomically (temp file then rename).
func (idx *Index) Persist() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}

	dir := filepath.Dir(idx.cfg.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(idx.cfg.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	tombstones := make([]int, 0, len(idx.removed))
	for slot := range idx.removed {
		tombstones = append(tombstones, slot)
	}
	sort.Ints(tombstones)

	w := bufio.NewWriter(tmp)
	h := header{
		Dimension:  uint32(idx.cfg.Dimension),
		Capacity:   uint32(idx.cfg.MaxElements),
		NextSlot:   uint64(idx.nextSlot),
		Slots:      idx.slots,
		Tombstones: tombstones,
	}
	if err := writeHeader(w, h); err != nil {
		cleanup()
		return fmt.Errorf("write index header: %w", err)
	}
	if len(idx.slots) > 0 {
		if err := idx.graph.Export(w); err != nil {
			cleanup()
			return fmt.Errorf("export graph: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpName, idx.cfg.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace index file: %w", err)
	}

	logger.Debug("hnsw %s: persisted %d slots (%d tombstoned)", idx.cfg.Name, len(idx.slots), len(tombstones))
	return nil
}

// Load replaces the in-memory index with the persisted one.
// A missing, truncated or incompatible file yields (false, nil) and leaves
// the current contents untouched.
func (idx *Index) Load() (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return false, domain.ErrIndexClosed
	}

	f, err := os.Open(idx.cfg.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("hnsw %s: cannot open %s: %v", idx.cfg.Name, idx.cfg.Path, err)
		}
		return false, nil
	}
	defer f.Close()

	snap, err := idx.decode(bufio.NewReader(f))
	if err != nil {
		logger.Warn("hnsw %s: discarding %s: %v", idx.cfg.Name, idx.cfg.Path, err)
		return false, nil
	}

	idx.graph = snap.graph
	idx.slots = snap.slots
	idx.removed = snap.removed
	idx.exact = snap.exact
	idx.nextSlot = snap.nextSlot

	logger.Debug("hnsw %s: loaded %d slots", idx.cfg.Name, len(idx.slots))
	return true, nil
}

type snapshot struct {
	graph    *hnsw.Graph[int]
	slots    []int
	removed  map[int]struct{}
	exact    map[uint64][]int
	nextSlot int
}

func (idx *Index) decode(r io.Reader) (snap snapshot, err error) {
	// Treat a panicking graph decoder as a corrupt file.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decode graph: %v", rec)
		}
	}()

	h, err := readHeader(r, idx.cfg.MaxElements)
	if err != nil {
		return snapshot{}, err
	}
	if int(h.Dimension) != idx.cfg.Dimension {
		return snapshot{}, fmt.Errorf("dimension %d, want %d", h.Dimension, idx.cfg.Dimension)
	}

	g := newGraph(idx.cfg)
	if len(h.Slots) > 0 {
		if err := g.Import(r); err != nil {
			return snapshot{}, fmt.Errorf("import graph: %w", err)
		}
	}
	if g.Len() != len(h.Slots) {
		return snapshot{}, fmt.Errorf("graph holds %d nodes, header lists %d", g.Len(), len(h.Slots))
	}

	exact := make(map[uint64][]int, len(h.Slots))
	for _, slot := range h.Slots {
		vec, ok := g.Lookup(slot)
		if !ok {
			return snapshot{}, fmt.Errorf("graph is missing slot %d", slot)
		}
		vh := vectorHash(vec)
		exact[vh] = append(exact[vh], slot)
	}

	removed := make(map[int]struct{}, len(h.Tombstones))
	for _, slot := range h.Tombstones {
		removed[slot] = struct{}{}
	}

	next := int(h.NextSlot)
	if n := len(h.Slots); n > 0 && h.Slots[n-1] >= next {
		next = h.Slots[n-1] + 1
	}

	return snapshot{graph: g, slots: h.Slots, removed: removed, exact: exact, nextSlot: next}, nil
}

func writeHeader(w io.Writer, h header) error {
	if _, err := io.WriteString(w, fileMagic); err != nil {
		return err
	}
	fixed := []any{formatVersion, h.Dimension, h.Capacity, h.NextSlot}
	for _, v := range fixed {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := writeInts(w, h.Slots); err != nil {
		return err
	}
	return writeInts(w, h.Tombstones)
}

func writeInts(w io.Writer, values []int) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(values))); err != nil {
		return err
	}
	buf := make([]uint64, len(values))
	for i, v := range values {
		buf[i] = uint64(v)
	}
	return binary.Write(w, binary.LittleEndian, buf)
}

func readHeader(r io.Reader, maxSlots int) (header, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return header{}, fmt.Errorf("%w: %v", errBadHeader, err)
	}
	if string(magic) != fileMagic {
		return header{}, fmt.Errorf("%w: magic %q", errBadHeader, magic)
	}

	var version uint32
	var h header
	for _, v := range []any{&version, &h.Dimension, &h.Capacity, &h.NextSlot} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return header{}, fmt.Errorf("%w: %v", errBadHeader, err)
		}
	}
	if version != formatVersion {
		return header{}, fmt.Errorf("%w: format version %d", errBadHeader, version)
	}

	var err error
	if h.Slots, err = readInts(r, maxSlots); err != nil {
		return header{}, err
	}
	if h.Tombstones, err = readInts(r, len(h.Slots)); err != nil {
		return header{}, err
	}
	if !sort.IntsAreSorted(h.Slots) {
		return header{}, fmt.Errorf("%w: slots out of order", errBadHeader)
	}
	return h, nil
}

func readInts(r io.Reader, limit int) ([]int, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadHeader, err)
	}
	if n > uint64(limit) {
		return nil, fmt.Errorf("%w: %d entries exceeds %d", errBadHeader, n, limit)
	}
	buf := make([]uint64, n)
	if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadHeader, err)
	}
	values := make([]int, n)
	for i, v := range buf {
		values[i] = int(v)
	}
	return values, nil
}
