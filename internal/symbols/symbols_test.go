package symbols

import "testing"

func TestStableIDExportedIgnoresPosition(t *testing.T) {
	a := StableID("src/a.ts", "alpha", 0, true)
	b := StableID("src/a.ts", "alpha", 512, true)
	if a != b {
		t.Errorf("exported id changed with position: %s vs %s", a, b)
	}
}

func TestStableIDUnexportedTracksPosition(t *testing.T) {
	a := StableID("src/a.ts", "helper", 10, false)
	b := StableID("src/a.ts", "helper", 20, false)
	if a == b {
		t.Error("unexported id should change when position changes")
	}
}

func TestStableIDDiffersAcrossFilesAndNames(t *testing.T) {
	base := StableID("src/a.ts", "alpha", 0, true)
	if StableID("src/b.ts", "alpha", 0, true) == base {
		t.Error("id should depend on file path")
	}
	if StableID("src/a.ts", "beta", 0, true) == base {
		t.Error("id should depend on name")
	}
}

func TestFileRootID(t *testing.T) {
	if FileRootID("src/a.ts") != StableID("src/a.ts", FileRootName, 0, true) {
		t.Error("file root id mismatch")
	}
}

func TestEdgeConfidences(t *testing.T) {
	cases := map[EdgeType]float64{
		EdgeCall:       1.0,
		EdgeTypeRel:    0.9,
		EdgeExtends:    0.95,
		EdgeImplements: 0.95,
		EdgeAlias:      0.95,
		EdgeReference:  0.8,
		EdgeReads:      0.7,
		EdgeWrites:     0.7,
	}
	for et, want := range cases {
		if got := et.Confidence(); got != want {
			t.Errorf("%s confidence = %v, want %v", et, got, want)
		}
	}
}

func TestKindClassification(t *testing.T) {
	if !IsDefinitionKind(KindStruct) || IsDefinitionKind(KindFile) || IsDefinitionKind(KindImpl) {
		t.Error("definition kind classification wrong")
	}
	if !IsTypeKind(KindInterface) || IsTypeKind(KindFunction) {
		t.Error("type kind classification wrong")
	}
	if !IsFunctionKind(KindMethod) || IsFunctionKind(KindClass) {
		t.Error("function kind classification wrong")
	}
}
