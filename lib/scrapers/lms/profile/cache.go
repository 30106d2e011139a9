package profile

import "sync"

// Snapshot is a self-profile together with the course view derived from it,
// the two are always stored and replaced together.
type Snapshot struct {
	Profile User
	Courses map[int64]string
}

func newSnapshot(user User) Snapshot {
	return Snapshot{
		Profile: user,
		Courses: cloneCourses(user.Courses),
	}
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Profile: s.Profile.Clone(),
		Courses: cloneCourses(s.Courses),
	}
}

type ProfileCache interface {
	// Get returns the cached snapshot, ok is false when nothing is cached.
	Get() (snapshot Snapshot, ok bool)
	Set(snapshot Snapshot)
	Clear()
}

// MemoryCache keeps the snapshot in memory, it is safe for concurrent use.
type MemoryCache struct {
	mutex     sync.RWMutex
	snapshot  Snapshot
	populated bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get() (Snapshot, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if !c.populated {
		return Snapshot{}, false
	}
	return c.snapshot.clone(), true
}

func (c *MemoryCache) Set(snapshot Snapshot) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.snapshot = snapshot.clone()
	c.populated = true
}

func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.snapshot = Snapshot{}
	c.populated = false
}
