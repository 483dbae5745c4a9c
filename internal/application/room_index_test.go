package application

import "testing"

func TestRoomIndexRemembersAndForgets(t *testing.T) {
	t.Parallel()

	index := newRoomIndex(2)
	index.Remember(ScheduleEntry{ID: "entry-1", RoomName: "room-a"}, ScheduleEntry{ID: "entry-2", RoomName: "room-b"})

	if id, ok := index.Lookup("room-a"); !ok || id != "entry-1" {
		t.Fatalf("expected room-a to resolve to entry-1, got %q (%v)", id, ok)
	}

	index.Forget(ScheduleEntry{ID: "entry-1", RoomName: "room-a"})
	if _, ok := index.Lookup("room-a"); ok {
		t.Fatalf("expected room-a to be forgotten")
	}
}

func TestRoomIndexEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	index := newRoomIndex(2)
	index.Remember(ScheduleEntry{ID: "entry-1", RoomName: "room-a"})
	index.Remember(ScheduleEntry{ID: "entry-2", RoomName: "room-b"})
	index.Lookup("room-a")
	index.Remember(ScheduleEntry{ID: "entry-3", RoomName: "room-c"})

	if index.Len() != 2 {
		t.Fatalf("expected 2 cached rooms, got %d", index.Len())
	}
	if _, ok := index.Lookup("room-b"); ok {
		t.Fatalf("expected room-b to be evicted")
	}
	if _, ok := index.Lookup("room-a"); !ok {
		t.Fatalf("expected recently used room-a to survive")
	}
}

func TestRoomIndexNilSafe(t *testing.T) {
	t.Parallel()

	var index *roomIndex
	index.Remember(ScheduleEntry{ID: "entry-1", RoomName: "room-a"})
	if _, ok := index.Lookup("room-a"); ok {
		t.Fatalf("expected nil index to miss")
	}
}
