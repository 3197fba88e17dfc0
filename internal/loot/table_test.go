package loot

import (
	"errors"
	"testing"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

func TestLoadRejectsNegativeWeight(t *testing.T) {
	tbl := New()
	err := tbl.Load([]Entry{{Tier: "common", ItemID: "arrow", Weight: -1, MinAmount: 1, MaxAmount: 1}}, nil)
	if !errors.Is(err, matcherr.ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
}

func TestLoadRejectsInvertedStackRange(t *testing.T) {
	tbl := New()
	err := tbl.Load([]Entry{{Tier: "common", ItemID: "arrow", Weight: 1, MinAmount: 5, MaxAmount: 2}}, nil)
	if !errors.Is(err, matcherr.ErrInvalidStackRange) {
		t.Fatalf("expected ErrInvalidStackRange, got %v", err)
	}
}

func TestLoadSkipsZeroWeightEntries(t *testing.T) {
	tbl := New()
	if err := tbl.Load([]Entry{
		{Tier: "common", ItemID: "nothing", Weight: 0, MinAmount: 1, MaxAmount: 1},
		{Tier: "common", ItemID: "arrow", Weight: 10, MinAmount: 1, MaxAmount: 1},
	}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, ok, err := tbl.RandomItem("common")
	if err != nil || !ok {
		t.Fatalf("expected a draw to succeed, got ok=%v err=%v", ok, err)
	}
	if entry.ItemID != "arrow" {
		t.Errorf("expected the only weighted entry to be drawn, got %q", entry.ItemID)
	}
}

type fakeProvider struct{ known map[string]capability.ItemStack }

func (p fakeProvider) Fetch(id string) (capability.ItemStack, bool) {
	s, ok := p.known[id]
	return s, ok
}

func TestLoadSkipsUnresolvableOpaqueEntries(t *testing.T) {
	tbl := New()
	provider := fakeProvider{known: map[string]capability.ItemStack{}}
	if err := tbl.Load([]Entry{
		{Tier: "epic", ItemID: "mystery", Opaque: true, Weight: 5, MinAmount: 1, MaxAmount: 1},
	}, provider); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := tbl.RandomItem("epic"); ok {
		t.Error("expected an unresolvable opaque entry to be silently skipped")
	}
}

func TestRandomItemUnknownTier(t *testing.T) {
	tbl := New()
	_, _, err := tbl.RandomItem("nonexistent")
	if !errors.Is(err, matcherr.ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestRandomStackRespectsAmountRange(t *testing.T) {
	tbl := New()
	if err := tbl.Load([]Entry{{Tier: "common", ItemID: "arrow", Weight: 1, MinAmount: 4, MaxAmount: 6}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		stack, ok, err := tbl.RandomStack("common")
		if err != nil || !ok {
			t.Fatalf("unexpected draw failure: ok=%v err=%v", ok, err)
		}
		if stack.Count < 4 || stack.Count > 6 {
			t.Fatalf("stack count %d outside [4,6]", stack.Count)
		}
	}
}

// fakeWorld is a minimal container-only World double for FillContainer tests.
type fakeWorld struct {
	capability.World
	slots map[int]capability.ItemStack
}

func (w *fakeWorld) OpenContainer(pos capability.Position) (capability.ContainerHandle, error) {
	return "handle", nil
}

func (w *fakeWorld) EmptySlots(h capability.ContainerHandle) ([]int, error) {
	var out []int
	for i := 0; i < 27; i++ {
		if _, used := w.slots[i]; !used {
			out = append(out, i)
		}
	}
	return out, nil
}

func (w *fakeWorld) SetSlot(h capability.ContainerHandle, index int, stack capability.ItemStack) error {
	w.slots[index] = stack
	return nil
}

func TestFillContainerPlacesWithinBounds(t *testing.T) {
	tbl := New()
	if err := tbl.Load([]Entry{{Tier: "common", ItemID: "arrow", Weight: 1, MinAmount: 1, MaxAmount: 1}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := &fakeWorld{slots: make(map[int]capability.ItemStack)}
	placed, err := tbl.FillContainer(w, capability.Position{}, "common", minStacksPerContainer, maxStacksPerContainer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if placed < minStacksPerContainer || placed > maxStacksPerContainer {
		t.Errorf("placed %d stacks, want between %d and %d", placed, minStacksPerContainer, maxStacksPerContainer)
	}
	if len(w.slots) != placed {
		t.Errorf("expected %d slots written, got %d", placed, len(w.slots))
	}
}

func TestFillContainerNotAContainer(t *testing.T) {
	tbl := New()
	_, err := tbl.FillContainer(&rejectingWorld{}, capability.Position{}, "common", minStacksPerContainer, maxStacksPerContainer)
	if !errors.Is(err, matcherr.ErrTargetNotContainer) {
		t.Fatalf("expected ErrTargetNotContainer, got %v", err)
	}
}

type rejectingWorld struct{ capability.World }

func (rejectingWorld) OpenContainer(pos capability.Position) (capability.ContainerHandle, error) {
	return nil, errors.New("no container here")
}
