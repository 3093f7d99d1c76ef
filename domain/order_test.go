package domain

import (
	"reflect"
	"testing"
)

func TestMoveIndex(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"forward", 0, 2, []string{"b", "c", "a", "d"}},
		{"backward", 3, 1, []string{"a", "d", "b", "c"}},
		{"same", 2, 2, []string{"a", "b", "c", "d"}},
		{"clamped", 0, 10, []string{"b", "c", "d", "a"}},
		{"bad source", 7, 0, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := []string{"a", "b", "c", "d"}
			got := MoveIndex(in, tt.from, tt.to)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("MoveIndex(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
			if !reflect.DeepEqual(in, []string{"a", "b", "c", "d"}) {
				t.Fatalf("input mutated: %v", in)
			}
		})
	}
}

func TestMoveIndexReverseRestoresOrder(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e"}
	moved := MoveIndex(in, 1, 3)
	back := MoveIndex(moved, 3, 1)
	if !reflect.DeepEqual(back, in) {
		t.Fatalf("expected %v after reversing, got %v", in, back)
	}
}

func TestRenumberItemsReportsChanged(t *testing.T) {
	items := []Item{{ID: "a", Order: 0}, {ID: "c", Order: 2}, {ID: "d", Order: 3}}
	changed := RenumberItems(items)
	if len(changed) != 2 || changed[0].ID != "c" || changed[0].Order != 1 || changed[1].ID != "d" || changed[1].Order != 2 {
		t.Fatalf("unexpected changed items %+v", changed)
	}
	for i, it := range items {
		if it.Order != i {
			t.Fatalf("item %s has order %d, want %d", it.ID, it.Order, i)
		}
	}
}

func TestItemsInColumnSorted(t *testing.T) {
	items := []Item{
		{ID: "x", ColumnID: "c1", Order: 1},
		{ID: "y", ColumnID: "c2", Order: 0},
		{ID: "z", ColumnID: "c1", Order: 0},
	}
	got := ItemsInColumn(items, "c1")
	if len(got) != 2 || got[0].ID != "z" || got[1].ID != "x" {
		t.Fatalf("unexpected items %+v", got)
	}
}

func TestProjectFromRoom(t *testing.T) {
	if id, ok := ProjectFromRoom(Room("p1")); !ok || id != "p1" {
		t.Fatalf("expected p1, got %q %v", id, ok)
	}
	for _, room := range []string{"", "project_", "tasks_p1"} {
		if _, ok := ProjectFromRoom(room); ok {
			t.Fatalf("expected %q to be rejected", room)
		}
	}
}
