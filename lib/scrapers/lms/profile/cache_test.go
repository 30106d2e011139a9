package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()

	_, ok := cache.Get()
	require.False(t, ok)

	user := User{Id: 3, Name: "Jane Student", Courses: map[int64]string{101: "Calculus 1"}}
	cache.Set(newSnapshot(user))

	snapshot, ok := cache.Get()
	require.True(t, ok)
	require.Equal(t, "Jane Student", snapshot.Profile.Name)
	require.Equal(t, user.Courses, snapshot.Courses)

	// callers get copies, writing to them leaves the cache alone
	snapshot.Courses[999] = "Injected"
	snapshot.Profile.Courses[999] = "Injected"
	user.Courses[998] = "Also injected"

	again, ok := cache.Get()
	require.True(t, ok)
	require.Equal(t, map[int64]string{101: "Calculus 1"}, again.Courses)
	require.Equal(t, map[int64]string{101: "Calculus 1"}, again.Profile.Courses)

	cache.Clear()
	_, ok = cache.Get()
	require.False(t, ok)
}
