package tokens

import (
	"testing"

	"knowledge-agent/web/types"
)

func TestSnapshotThresholds(t *testing.T) {
	tests := []struct {
		name         string
		total        int
		limit        int
		wantWarning  bool
		wantCritical bool
	}{
		{"empty", 0, 8192, false, false},
		{"half", 4096, 8192, false, false},
		{"just under warning", 6553, 8192, false, false},
		{"at warning", 6554, 8192, true, false},
		{"just under critical", 7782, 8192, true, false},
		{"at critical", 7783, 8192, true, true},
		{"over limit", 9000, 8192, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := snapshot(tt.total, tt.limit, 0)
			if usage.IsWarning != tt.wantWarning {
				t.Errorf("IsWarning = %v, want %v", usage.IsWarning, tt.wantWarning)
			}
			if usage.IsCritical != tt.wantCritical {
				t.Errorf("IsCritical = %v, want %v", usage.IsCritical, tt.wantCritical)
			}
		})
	}
}

func TestSnapshotFields(t *testing.T) {
	usage := snapshot(2048, 8192, 7)

	if usage.TotalTokens != 2048 || usage.Limit != 8192 {
		t.Errorf("totals wrong: %#v", usage)
	}
	if usage.UsagePercent != 25.0 {
		t.Errorf("percent = %v, want 25", usage.UsagePercent)
	}
	if usage.Remaining != 6144 {
		t.Errorf("remaining = %d, want 6144", usage.Remaining)
	}
	if usage.MessagesCount != 7 {
		t.Errorf("messages = %d, want 7", usage.MessagesCount)
	}
}

func TestSnapshotRemainingNeverNegative(t *testing.T) {
	usage := snapshot(10000, 8192, 3)
	if usage.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", usage.Remaining)
	}
}

func TestComputeValidation(t *testing.T) {
	messages := []types.Message{{Role: types.RoleUser, Content: "hi"}}

	if _, err := Compute(nil, messages, 8192); err == nil {
		t.Error("expected an error for a nil counter")
	}
	if _, err := Compute(NewCounter(""), messages, 0); err == nil {
		t.Error("expected an error for a zero limit")
	}
	if _, err := Compute(NewCounter(""), messages, -1); err == nil {
		t.Error("expected an error for a negative limit")
	}
}

func TestComputeFailsOutright(t *testing.T) {
	counter := NewCounter("no-such-encoding")
	usage, err := Compute(counter, []types.Message{{Content: "hi"}}, 8192)
	if err == nil {
		t.Fatal("expected an error for an unknown encoding")
	}
	if usage != nil {
		t.Errorf("failure must not return a partial snapshot, got %#v", usage)
	}
}
