package identity

import (
	"regexp"
	"testing"
)

var urlSafe = regexp.MustCompile(`^[a-z0-9_.-]+$`)

func TestWorkflowID_Deterministic(t *testing.T) {
	a := WorkflowID("acme", "proj-1", "To Do")
	b := WorkflowID("acme", "proj-1", "To Do")
	if a != b {
		t.Errorf("WorkflowID not stable: %q != %q", a, b)
	}
	if a != "acme.proj-1.to-do" {
		t.Errorf("WorkflowID = %q, want %q", a, "acme.proj-1.to-do")
	}
}

func TestWorkflowID_TenantScoped(t *testing.T) {
	a := WorkflowID("acme", "proj-1", "To Do")
	b := WorkflowID("globex", "proj-1", "To Do")
	if a == b {
		t.Errorf("different tenants produced the same id %q", a)
	}
}

func TestWorkItemTypeID(t *testing.T) {
	tests := []struct {
		tenant string
		name   string
		want   string
	}{
		{"acme", "Bug", "acme.bug"},
		{"acme", "bug", "acme.bug"},
		{"acme", "  Bug  ", "acme.bug"},
		{"acme", "User Story", "acme.user-story"},
		{"globex", "Bug", "globex.bug"},
	}
	for _, tt := range tests {
		got := WorkItemTypeID(tt.tenant, tt.name)
		if got != tt.want {
			t.Errorf("WorkItemTypeID(%q, %q) = %q, want %q", tt.tenant, tt.name, got, tt.want)
		}
	}
}

func TestIDs_URLSafe(t *testing.T) {
	inputs := []string{"Bug", "Épica / Feature", "QA: Review?", "100% done", "a_b c"}
	for _, in := range inputs {
		for _, id := range []string{WorkItemTypeID("acme", in), WorkflowID("acme", "p-1", in)} {
			if !urlSafe.MatchString(id) {
				t.Errorf("id %q for %q is not URL-safe", id, in)
			}
		}
	}
}

func TestIDs_DistinctNames(t *testing.T) {
	seen := make(map[string]string)
	for _, name := range []string{"Bug", "Story", "Epic", "Task", "Defect", "Spike"} {
		id := WorkItemTypeID("acme", name)
		if prev, ok := seen[id]; ok {
			t.Fatalf("%q and %q share id %q", prev, name, id)
		}
		seen[id] = name
	}
}

func TestWorkflowID_PartsDoNotBleed(t *testing.T) {
	tests := []struct {
		a, b [3]string
	}{
		{[3]string{"acme", "p1", "to do"}, [3]string{"acme", "p1-to", "do"}},
		{[3]string{"acme", "p1", "to.do"}, [3]string{"acme", "p1.to", "do"}},
		{[3]string{"acme-p1", "x", "y"}, [3]string{"acme", "p1-x", "y"}},
	}
	for _, tt := range tests {
		a := WorkflowID(tt.a[0], tt.a[1], tt.a[2])
		b := WorkflowID(tt.b[0], tt.b[1], tt.b[2])
		if a == b {
			t.Errorf("WorkflowID%q and WorkflowID%q share id %q", tt.a, tt.b, a)
		}
	}
}
