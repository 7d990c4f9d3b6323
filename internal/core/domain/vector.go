package domain

// IndexName names one serialized vector index.
type IndexName string

// Vector indices. Thoughts and memories share the provider indices;
// documents have their own local-provider index.
const (
	IndexRemote   IndexName = "remote"
	IndexLocal    IndexName = "local"
	IndexRagLocal IndexName = "rag_local"
)

// AllIndices lists every index in startup order.
var AllIndices = []IndexName{IndexRemote, IndexLocal, IndexRagLocal}

// IndexForProvider returns the shared thought/memory index for p.
func IndexForProvider(p Provider) IndexName {
	if p == ProviderRemote {
		return IndexRemote
	}
	return IndexLocal
}

// ProviderForIndex returns the provider whose vectors live in name.
func ProviderForIndex(name IndexName) Provider {
	if name == IndexRemote {
		return ProviderRemote
	}
	return ProviderLocal
}

// OwnerKind identifies the record type that owns a vector slot.
type OwnerKind string

// Slot owners.
const (
	OwnerThought OwnerKind = "thought"
	OwnerMemory  OwnerKind = "memory"
	OwnerChunk   OwnerKind = "chunk"
)

// SlotRef maps a vector index slot to the record that owns it.
type SlotRef struct {
	Index     IndexName
	Slot      int
	OwnerKind OwnerKind
	OwnerID   string
	Orphaned  bool
}

// SlotVector pairs a slot with its vector for index rebuilds.
type SlotVector struct {
	Slot   int
	Vector []float32
}

// ClearReport summarises a bulk clear.
type ClearReport struct {
	// Rows counts deleted rows per table.
	Rows map[string]int64

	// Rebuilt lists indices rebuilt after the clear.
	Rebuilt []IndexName

	// Errors maps indices that failed to rebuild to the reason.
	Errors map[IndexName]string
}
