package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `{
  "containers": {
    "wiki": {"host": "wiki.example.com", "path": "wiki", "url": "http://wiki:80", "idleTimeout": 600, "active": true}
  },
  "order": ["wiki"],
  "groups": {
    "media": {"active": true, "idleTimeout": 300, "containers": ["wiki"]}
  },
  "groupOrder": ["media"],
  "schedules": [
    {"target": "wiki", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "18:00", "active": true}]}
  ],
  "apiKeys": {"pve": {"hostname": "pve1.local", "port": 8006, "node": "pve1", "user": "root@pam", "tokenId": "wake", "token": "secret"}}
}`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesDocument(t *testing.T) {
	path := writeTemp(t, sampleDoc)

	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil {
		t.Fatal("doc should not be nil")
	}
	if len(doc.Containers) != 1 {
		t.Fatalf("expected 1 backend, got %d", len(doc.Containers))
	}
	if doc.Containers["wiki"].Name != "wiki" {
		t.Fatalf("backend name not populated from map key: %q", doc.Containers["wiki"].Name)
	}
	if !doc.APIKeys.PVE.Enabled() {
		t.Fatal("pve keys should be enabled")
	}
}

func TestGroupMembersNormalizesScalarContainer(t *testing.T) {
	doc := writeTempDoc(t, `{
		"containers": {"a": {"host": "a", "path": "a", "url": "http://a", "active": true}},
		"groups": {"g": {"active": true, "containers": "a"}}
	}`)

	members := doc.GroupMembers("g")
	if len(members) != 1 || members[0].Name != "a" {
		t.Fatalf("expected single member a, got %+v", members)
	}
}

func writeTempDoc(t *testing.T, contents string) *Document {
	t.Helper()
	path := writeTemp(t, contents)
	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestValidateRejectsDanglingGroupMember(t *testing.T) {
	path := writeTemp(t, `{
		"containers": {},
		"groups": {"g": {"active": true, "containers": ["ghost"]}}
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for dangling group member")
	}
}

func TestValidateRejectsUnknownScheduleTarget(t *testing.T) {
	path := writeTemp(t, `{
		"containers": {},
		"schedules": [{"target": "ghost", "targetType": "container", "timers": []}]
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown schedule target")
	}
}
