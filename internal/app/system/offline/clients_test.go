package offline_test

import (
	"testing"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
)

func TestClients_RegisterAndClaim(t *testing.T) {
	c := offline.NewClients()
	c.Register("tab-1", "http://farma.test/", "")
	c.Register("tab-2", "http://farma.test/sobre", "v1")

	if got := c.Claim("v2"); got != 2 {
		t.Errorf("Claim: got %d, want 2", got)
	}
	cl, ok := c.Get("tab-1")
	if !ok || cl.Controller != "v2" {
		t.Errorf("tab-1: got %+v (found=%v)", cl, ok)
	}

	cl, opened := c.FocusOrOpen("http://farma.test/", "v2")
	if opened || cl.ID != "tab-1" || !cl.Focused {
		t.Errorf("FocusOrOpen existing: got %+v opened=%v", cl, opened)
	}
	if _, opened = c.FocusOrOpen("http://farma.test/contato", "v2"); !opened {
		t.Error("FocusOrOpen should open a page for an unknown url")
	}
	if got := c.Len(); got != 3 {
		t.Errorf("Len: got %d, want 3", got)
	}
}

func TestClients_ForgetsIdlePages(t *testing.T) {
	c := offline.NewClientsWithTTL(30 * time.Millisecond)
	for _, id := range []string{"a", "b", "c"} {
		c.Register(id, "http://farma.test/", "")
	}
	time.Sleep(60 * time.Millisecond)

	if got := c.Len(); got != 0 {
		t.Errorf("Len after TTL: got %d, want 0", got)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expired client still found")
	}
}
