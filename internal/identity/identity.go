// Package identity derives stable row identifiers from tenant ids and
// human-readable names. Renaming an entity upstream yields a new identifier.
package identity

import (
	"strings"

	"github.com/gosimple/slug"
)

// separator joins the slugified parts. slug.Make never emits it, so parts
// cannot bleed into each other.
const separator = "."

// WorkflowID returns the identifier of the workflow called name in projectID.
func WorkflowID(tenant, projectID, name string) string {
	return derive(tenant, projectID, name)
}

// WorkItemTypeID returns the tenant-wide identifier of a work item type.
func WorkItemTypeID(tenant, displayName string) string {
	return derive(tenant, displayName)
}

func derive(parts ...string) string {
	slugs := make([]string, len(parts))
	for i, p := range parts {
		slugs[i] = slug.Make(strings.ToLower(strings.TrimSpace(p)))
	}
	return strings.Join(slugs, separator)
}
