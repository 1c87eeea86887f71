package engine

import "testing"

func TestProbeFindsWrappersInPriorityOrder(t *testing.T) {
	run := &fakeRunner{paths: map[string]string{
		"trizen": "/usr/bin/trizen",
		"yay":    "/usr/bin/yay",
	}}

	caps := Probe(run)

	if !caps.Has(WrapperYay) || !caps.Has(WrapperTrizen) || caps.Has(WrapperPikaur) {
		t.Fatalf("capabilities = %v", caps.Kinds())
	}
	if best, ok := caps.Best(); !ok || best != WrapperYay {
		t.Errorf("Best() = %s, %v; want yay", best, ok)
	}
	kinds := caps.Kinds()
	if len(kinds) != 2 || kinds[0] != WrapperYay || kinds[1] != WrapperTrizen {
		t.Errorf("Kinds() = %v, want priority order yay, trizen", kinds)
	}
	if caps.Path(WrapperYay) != "/usr/bin/yay" {
		t.Errorf("Path(yay) = %q", caps.Path(WrapperYay))
	}
}

func TestProbeNoWrappers(t *testing.T) {
	caps := Probe(&fakeRunner{})

	if _, ok := caps.Best(); ok {
		t.Error("Best() reported a wrapper on a bare host")
	}
	if kinds := caps.Kinds(); len(kinds) != 0 {
		t.Errorf("Kinds() = %v, want none", kinds)
	}
}
