package catalog

import "time"

// ResourceType identifies the class of resource a permission applies to.
type ResourceType string

// Known resource types. The catalog accepts new values without code changes;
// these constants cover the seeded set.
const (
	ResourceUser    ResourceType = "user"
	ResourceCollege ResourceType = "college"
	ResourceStudent ResourceType = "student"
	ResourceAdmin   ResourceType = "admin"
	ResourceAuth    ResourceType = "auth"
	ResourceFile    ResourceType = "file"
	ResourceSystem  ResourceType = "system"
	ResourceStage   ResourceType = "stage"
)

// PermissionType identifies the action a permission grants.
type PermissionType string

const (
	PermRead    PermissionType = "read"
	PermWrite   PermissionType = "write"
	PermDelete  PermissionType = "delete"
	PermUpdate  PermissionType = "update"
	PermApprove PermissionType = "approve"
	PermVerify  PermissionType = "verify"
	// PermAdmin is the blanket permission: holding {resource}_admin satisfies
	// any specific check on that resource.
	PermAdmin PermissionType = "admin"
)

// Permission is an atomic grantable right. Identity is the
// (resource type, permission type) pair and is immutable after creation;
// role grants reference the ID, so renaming would silently detach them.
type Permission struct {
	ID             int64
	ResourceType   ResourceType
	PermissionType PermissionType
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Name renders the derived display key, e.g. "college_approve".
func (p Permission) Name() string {
	return PermissionName(p.ResourceType, p.PermissionType)
}

// PermissionName builds the display key for a resource/action pair.
func PermissionName(resource ResourceType, action PermissionType) string {
	return string(resource) + "_" + string(action)
}
