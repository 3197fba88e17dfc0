// Package loot implements the Loot Table (§4.3): a tiered, weighted item
// catalog and the bounded-attempt container-fill routine that is the only
// writer of container inventories on the engine thread.
//
// Grounded on cra88y-block-server/go/items/lootbox.go's tier-keyed drop
// table and randomRange helper, generalized from a fixed currency+item
// reward shape to an open-ended weighted-entry list per tier, and on
// internal/game/player.go's math/rand draw style for the weighted sample
// itself.
package loot

import (
	"math/rand"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

// Entry is one weighted reward within a tier. Stack is uniformly sampled
// in [MinAmount, MaxAmount] when drawn.
type Entry struct {
	Tier      string
	ItemID    string // intrinsic material id, or an opaque-provider key
	Opaque    bool   // true if ItemID must be resolved via OpaqueItemProvider
	Weight    float64
	MinAmount int
	MaxAmount int
}

// Table is the mapping from tier tag to its weighted entry list, plus the
// cumulative-weight prefix that sampling scans linearly.
type Table struct {
	tiers    map[string][]Entry
	cumWeight map[string][]float64
	total    map[string]float64
	rng      *rand.Rand
}

// New creates an empty table. Sampling draws from the shared top-level
// math/rand source (matching the teacher's style of calling
// rand.Float64/rand.Intn directly rather than threading a Source).
func New() *Table {
	return &Table{
		tiers:     make(map[string][]Entry),
		cumWeight: make(map[string][]float64),
		total:     make(map[string]float64),
	}
}

// Load ingests a list of entries, one LootEntry at a time. An entry whose
// ItemID is Opaque is skipped without error if provider is nil or cannot
// resolve it — per §4.3, "deferred opaque entries are silently skipped if
// the corresponding opaque-item provider is unavailable". Zero-weight
// entries are excluded. Negative weight or min>max fails the whole load.
func (t *Table) Load(entries []Entry, provider capability.OpaqueItemProvider) error {
	for _, e := range entries {
		if e.Weight < 0 {
			return matcherr.Wrap(matcherr.ErrInvalidWeight, "tier %q item %q: weight %v", e.Tier, e.ItemID, e.Weight)
		}
		if e.MinAmount <= 0 || e.MinAmount > e.MaxAmount {
			return matcherr.Wrap(matcherr.ErrInvalidStackRange, "tier %q item %q: min %d max %d", e.Tier, e.ItemID, e.MinAmount, e.MaxAmount)
		}
		if e.Weight == 0 {
			continue
		}
		if e.Opaque {
			if provider == nil {
				continue
			}
			if _, ok := provider.Fetch(e.ItemID); !ok {
				continue
			}
		}
		t.tiers[e.Tier] = append(t.tiers[e.Tier], e)
	}
	t.rebuild()
	return nil
}

func (t *Table) rebuild() {
	t.cumWeight = make(map[string][]float64, len(t.tiers))
	t.total = make(map[string]float64, len(t.tiers))
	for tier, entries := range t.tiers {
		prefix := make([]float64, len(entries))
		sum := 0.0
		for i, e := range entries {
			sum += e.Weight
			prefix[i] = sum
		}
		t.cumWeight[tier] = prefix
		t.total[tier] = sum
	}
}

// Tiers reports every tier with at least one entry.
func (t *Table) Tiers() []string {
	out := make([]string, 0, len(t.tiers))
	for tier := range t.tiers {
		out = append(out, tier)
	}
	return out
}

// RandomTier picks uniformly among currently populated tiers. Returns
// ("", false) if the table has no tiers.
func (t *Table) RandomTier() (string, bool) {
	tiers := t.Tiers()
	if len(tiers) == 0 {
		return "", false
	}
	return tiers[rand.Intn(len(tiers))], true
}

// RandomItem draws u uniformly in [0, Σw) and returns the first entry whose
// cumulative prefix weight is >= u. Returns (Entry{}, false, matcherr.ErrUnknownTier)
// if the tier has no entries, and (Entry{}, false, nil) if total weight is
// <= 0 (all entries zero-weight, which Load already filters).
func (t *Table) RandomItem(tier string) (Entry, bool, error) {
	entries, ok := t.tiers[tier]
	if !ok || len(entries) == 0 {
		return Entry{}, false, matcherr.ErrUnknownTier
	}
	total := t.total[tier]
	if total <= 0 {
		return Entry{}, false, nil
	}
	u := rand.Float64() * total
	prefix := t.cumWeight[tier]
	for i, cw := range prefix {
		if cw >= u {
			entry := entries[i]
			return entry, true, nil
		}
	}
	// Floating point edge case: u landed past the last prefix due to
	// rounding. Fall back to the final entry rather than reporting miss.
	return entries[len(entries)-1], true, nil
}

// RandomStack draws a random item for tier and samples its stack count
// uniformly in [MinAmount, MaxAmount].
func (t *Table) RandomStack(tier string) (capability.ItemStack, bool, error) {
	entry, ok, err := t.RandomItem(tier)
	if err != nil || !ok {
		return capability.ItemStack{}, false, err
	}
	count := entry.MinAmount
	if entry.MaxAmount > entry.MinAmount {
		count += rand.Intn(entry.MaxAmount - entry.MinAmount + 1)
	}
	return capability.ItemStack{ItemID: entry.ItemID, Count: count, Fallback: entry.Opaque}, true, nil
}

const (
	minStacksPerContainer = 4
	maxStacksPerContainer = 6
	maxFillAttempts       = 50
)

// FillContainer places minStacks to maxStacks stacks (inclusive, uniform)
// into the target container's currently empty slots, drawing from tier,
// using up to 50 placement attempts to tolerate repeated empty-slot or
// sampling misses. Terminates early if no empty slots remain. Returns the
// number of stacks actually placed. minStacks/maxStacks come from the
// `items-per-container.{min,max}` config surface (§6); callers that don't
// care can pass the package's minStacksPerContainer/maxStacksPerContainer
// defaults.
func (t *Table) FillContainer(world capability.World, position capability.Position, tier string, minStacks, maxStacks int) (int, error) {
	handle, err := world.OpenContainer(position)
	if err != nil {
		return 0, matcherr.ErrTargetNotContainer
	}

	if minStacks <= 0 {
		minStacks = minStacksPerContainer
		if maxStacks <= 0 {
			maxStacks = maxStacksPerContainer
		}
	}
	if maxStacks < minStacks {
		maxStacks = minStacks
	}

	target := minStacks
	if maxStacks > minStacks {
		target += rand.Intn(maxStacks - minStacks + 1)
	}

	placed := 0
	for attempt := 0; attempt < maxFillAttempts && placed < target; attempt++ {
		empty, err := world.EmptySlots(handle)
		if err != nil || len(empty) == 0 {
			break
		}
		stack, ok, err := t.RandomStack(tier)
		if err != nil {
			return placed, err
		}
		if !ok {
			continue
		}
		slot := empty[rand.Intn(len(empty))]
		if err := world.SetSlot(handle, slot, stack); err != nil {
			continue
		}
		placed++
	}
	return placed, nil
}
