package rpki

import (
	"testing"

	"github.com/bgpstream/bgpstream/record"
)

func TestNoOpAlwaysUnknown(t *testing.T) {
	var a Annotator = NoOp{}
	elem := &record.Element{Kind: record.ElemAnnounce}

	v, err := a.Annotate(elem)
	if err != nil {
		t.Fatalf("NoOp.Annotate returned error: %v", err)
	}
	if v != Unknown {
		t.Errorf("NoOp.Annotate verdict = %s, want %s", v, Unknown)
	}
	if elem.Kind != record.ElemAnnounce {
		t.Errorf("NoOp.Annotate mutated element: Kind = %s", elem.Kind)
	}
}
