package matcher

import "testing"

func TestAllocatePortsFixedAndDynamic(t *testing.T) {
	declared := []declaredPort{
		{Name: "http", Fixed: 8080, HostExposed: true},
		{Name: "admin", HostExposed: true},
		{Name: "internal", ContainerPort: 9000, HostExposed: false},
	}
	offer := []PortRange{{Begin: 8080, End: 8082}}

	bindings, reasons, ok := allocatePorts(declared, offer)
	if !ok {
		t.Fatalf("expected match, got reasons %v", reasons)
	}
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bindings, got %d", len(bindings))
	}
	if bindings[0].HostPort == nil || *bindings[0].HostPort != 8080 {
		t.Fatalf("expected fixed port 8080, got %v", bindings[0].HostPort)
	}
	if bindings[1].HostPort == nil || *bindings[1].HostPort == 8080 {
		t.Fatalf("expected a dynamic port distinct from 8080, got %v", bindings[1].HostPort)
	}
	if bindings[2].HostPort != nil {
		t.Fatalf("expected container-only port to have nil host port, got %v", bindings[2].HostPort)
	}
}

func TestAllocatePortsFixedUnavailable(t *testing.T) {
	declared := []declaredPort{{Name: "http", Fixed: 9090, HostExposed: true}}
	offer := []PortRange{{Begin: 8080, End: 8082}}

	_, reasons, ok := allocatePorts(declared, offer)
	if ok {
		t.Fatalf("expected no-match for unavailable fixed port")
	}
	if len(reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", reasons)
	}
}

func TestPortAllocatorLowestFirst(t *testing.T) {
	alloc := newPortAllocator([]PortRange{{Begin: 31000, End: 31002}, {Begin: 100, End: 101}})
	p, ok := alloc.takeDynamic()
	if !ok || p != 100 {
		t.Fatalf("expected lowest free port 100 first, got %d ok=%v", p, ok)
	}
}
