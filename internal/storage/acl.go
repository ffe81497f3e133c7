package storage

import "slices"

// allows applies the access rules in order: missing or uncommitted metadata
// denies, public objects are readable by anyone, anonymous callers are
// denied, the owner may do anything, and allowed users may only read.
func (m *ObjectMeta) allows(userID string, perm Permission) bool {
	if m == nil || m.Pending {
		return false
	}
	if perm == PermissionRead && m.Visibility == VisibilityPublic {
		return true
	}
	if userID == "" {
		return false
	}
	if m.Owner != "" && userID == m.Owner {
		return true
	}
	if perm != PermissionRead {
		return false
	}
	return slices.Contains(m.AllowedUsers, userID)
}

// apply merges patch over m. Owner is never replaced once set.
func (m *ObjectMeta) apply(patch AclPatch) {
	if m.Owner == "" && patch.Owner != "" {
		m.Owner = patch.Owner
	}
	if patch.Visibility != nil {
		m.Visibility = *patch.Visibility
	}
	if patch.AllowedUsers != nil {
		m.AllowedUsers = slices.Clone(*patch.AllowedUsers)
	}
	if m.Visibility == "" {
		m.Visibility = VisibilityPrivate
	}
}

// CacheScope is the Cache-Control directive for m; missing metadata is private.
func (m *ObjectMeta) CacheScope() string {
	if m != nil && m.Visibility == VisibilityPublic {
		return "public"
	}
	return "private"
}
