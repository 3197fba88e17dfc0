package spatial

import "testing"

func TestQueryRadiusFindsInsertedEntity(t *testing.T) {
	g := NewSpatialGrid(40, 40, 4, 8)
	g.Insert(1, 20, 20)
	candidates := g.QueryRadius(21, 19, 4)
	found := false
	for _, c := range candidates {
		if c == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected entity 1 among candidates near its cell, got %v", candidates)
	}
}

func TestQueryRadiusOmitsDistantEntity(t *testing.T) {
	g := NewSpatialGrid(100, 100, 4, 8)
	g.Insert(1, 0, 0)
	g.Insert(2, 90, 90)
	candidates := g.QueryRadius(0, 0, 4)
	for _, c := range candidates {
		if c == 2 {
			t.Fatalf("expected the distant entity to be pruned by the grid, got %v", candidates)
		}
	}
}

func TestClearResetsCellsWithoutShrinkingCapacity(t *testing.T) {
	g := NewSpatialGrid(20, 20, 4, 4)
	g.Insert(1, 2, 2)
	g.Clear()
	if got := g.QueryCell(2, 2); len(got) != 0 {
		t.Fatalf("expected an empty cell after Clear, got %v", got)
	}
}

func TestInsertClampsOutOfBoundsCoordinates(t *testing.T) {
	g := NewSpatialGrid(16, 16, 4, 4)
	g.Insert(1, -100, -100)
	g.Insert(2, 1000, 1000)
	cols, rows, _ := g.Dimensions()
	if got := g.QueryCell(0, 0); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected the negative-coordinate insert to clamp into cell (0,0), got %v", got)
	}
	lastX := float64(cols*4) - 1
	lastY := float64(rows*4) - 1
	if got := g.QueryCell(lastX, lastY); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected the overflowing insert to clamp into the last cell, got %v", got)
	}
}
