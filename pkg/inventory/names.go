package inventory

import (
	"strconv"
	"sync"

	"github.com/moby/sys/user"
)

// nameCache resolves uid/gid to user/group names, caching lookups the way
// the teacher's identity package caches credential lookups. A uid/gid that
// cannot be resolved falls back to its numeric string rather than failing
// the scan outright — an unresolvable owner should not abort a backup.
type nameCache struct {
	mu     sync.Mutex
	users  map[uint32]string
	groups map[uint32]string
}

func newNameCache() *nameCache {
	return &nameCache{
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}
}

func (c *nameCache) userName(uid uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.users[uid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupUid(int(uid)); err == nil {
		name = u.Name
	}
	c.users[uid] = name
	return name
}

func (c *nameCache) groupName(gid uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.groups[gid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGid(int(gid)); err == nil {
		name = g.Name
	}
	c.groups[gid] = name
	return name
}
