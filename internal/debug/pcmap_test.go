package debug

import "testing"

func buildMinimalProgramDebugInfo() ProgramDebugInfo {
	lines := []LineEntry{
		{File: "test.orz", Line: 1, Column: 1},
		{File: "test.orz", Line: 2, Column: 1},
		{File: "test.orz", Line: 3, Column: 1},
	}
	fn := FunctionInfo{Name: "main", Lines: lines}
	mod := ModuleDebugInfo{ModuleName: "m", Functions: []FunctionInfo{fn}}

	return ProgramDebugInfo{Modules: []ModuleDebugInfo{mod}}
}

func TestPCMap_AddrToLine(t *testing.T) {
	dbg := buildMinimalProgramDebugInfo()
	m := BuildPCMap(dbg)

	if len(m.Ranges) == 0 {
		t.Fatalf("no ranges")
	}

	r := m.Ranges[0]
	// head
	if file, line, ok := m.AddrToLine(r.Low); !ok || file == "" || line == 0 {
		t.Fatalf("unexpected head resolve: %v %v %v", file, line, ok)
	}
	// tail-1
	if file, line, ok := m.AddrToLine(r.High - 1); !ok || file == "" || line == 0 {
		t.Fatalf("unexpected tail resolve: %v %v %v", file, line, ok)
	}
	// out of range
	if _, _, ok := m.AddrToLine(r.High + 1024); ok {
		t.Fatalf("expected miss for out-of-range address")
	}
}
