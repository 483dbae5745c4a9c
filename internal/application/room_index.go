package application

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultRoomIndexSize = 1024

// roomIndex remembers which entry a room name resolves to so that the frequent
// live and presence signals from the video subsystem skip the room name lookup.
// Entries are verified against the store on every hit.
type roomIndex struct {
	cache *lru.Cache[string, string]
}

func newRoomIndex(size int) *roomIndex {
	if size <= 0 {
		size = defaultRoomIndexSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return &roomIndex{}
	}
	return &roomIndex{cache: cache}
}

func (r *roomIndex) Lookup(roomName string) (string, bool) {
	if r == nil || r.cache == nil {
		return "", false
	}
	return r.cache.Get(roomName)
}

func (r *roomIndex) Remember(entries ...ScheduleEntry) {
	if r == nil || r.cache == nil {
		return
	}
	for _, entry := range entries {
		if entry.RoomName != "" {
			r.cache.Add(entry.RoomName, entry.ID)
		}
	}
}

func (r *roomIndex) Forget(entries ...ScheduleEntry) {
	if r == nil || r.cache == nil {
		return
	}
	for _, entry := range entries {
		r.cache.Remove(entry.RoomName)
	}
}

func (r *roomIndex) Len() int {
	if r == nil || r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
