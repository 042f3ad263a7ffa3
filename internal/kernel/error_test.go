package kernel

import "testing"

func TestError(t *testing.T) {
	err := &Error{Module: "vmm", Kind: KindNoMemory, Message: "no free frames"}

	want := "vmm: no free frames"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
}

func TestErrorNil(t *testing.T) {
	var err *Error
	if got, want := err.Error(), "<nil>"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
}

func TestNewError(t *testing.T) {
	err := New("sched", KindInvalid, "bad priority")
	if err.Module != "sched" || err.Kind != KindInvalid || err.Message != "bad priority" {
		t.Fatalf("New() = %+v; unexpected fields", err)
	}
}

func TestKindString(t *testing.T) {
	specs := []struct {
		k    Kind
		want string
	}{
		{KindNone, "KindNone"},
		{KindInvalid, "KindInvalid"},
		{KindUnimplemented, "KindUnimplemented"},
	}
	for _, s := range specs {
		if got := s.k.String(); got != s.want {
			t.Errorf("Kind(%d).String() = %q; want %q", s.k, got, s.want)
		}
	}

	if got := Kind(200).String(); got != "Kind(200)" {
		t.Errorf("Kind(200).String() = %q; want %q", got, "Kind(200)")
	}
}
