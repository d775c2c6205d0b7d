package hub

import "testing"

func TestADCAdaptorParsesINFForOwnIdentityAsHello(t *testing.T) {
	a := NewADCAdaptor()
	a.SetOwnSID("AAAA")

	event, err := a.ParseLine([]byte("BINF AAAA NIalice SS1000 SL3 OP1"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventHello {
		t.Fatalf("kind = %v, want EventHello", event.Kind)
	}
	if event.Identity.Nick != "alice" || event.Identity.ShareSize != 1000 || event.Identity.SlotsFree != 3 || !event.Identity.Operator {
		t.Fatalf("unexpected identity: %+v", event.Identity)
	}
}

func TestADCAdaptorParsesINFForOtherUserAsUserUpdated(t *testing.T) {
	a := NewADCAdaptor()
	a.SetOwnSID("AAAA")

	event, err := a.ParseLine([]byte("BINF BBBB NIbob SS500 SL1"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventUserUpdated {
		t.Fatalf("kind = %v, want EventUserUpdated", event.Kind)
	}
	if event.Identity.Nick != "bob" {
		t.Fatalf("nick = %q, want bob", event.Identity.Nick)
	}
}

func TestADCAdaptorUnescapesSpacesInFieldValues(t *testing.T) {
	a := NewADCAdaptor()
	event, err := a.ParseLine([]byte("BINF CCCC NIhello\\sworld"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Identity.Nick != "hello world" {
		t.Fatalf("nick = %q, want %q", event.Identity.Nick, "hello world")
	}
}

func TestADCAdaptorParsesChatMessageWithThirdPersonFlag(t *testing.T) {
	a := NewADCAdaptor()
	event, err := a.ParseLine([]byte("BMSG CCCC hi\\sthere ME1"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventChatMessage {
		t.Fatalf("kind = %v, want EventChatMessage", event.Kind)
	}
	if event.Chat.Text != "hi there" || !event.Chat.ThirdPerson {
		t.Fatalf("unexpected chat: %+v", event.Chat)
	}
}

func TestADCAdaptorParsesSearchSizeBounds(t *testing.T) {
	a := NewADCAdaptor()
	event, err := a.ParseLine([]byte("BSCH AAAA ANmovie GE1000 LE2000 TYfile"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventSearch {
		t.Fatalf("kind = %v, want EventSearch", event.Kind)
	}
	if event.Search.SizeMin != 1000 || event.Search.SizeMax != 2000 || event.Search.Pattern != "movie" {
		t.Fatalf("unexpected search: %+v", event.Search)
	}
}

func TestADCAdaptorParsesQUIWithRedirectAsRedirectEvent(t *testing.T) {
	a := NewADCAdaptor()
	event, err := a.ParseLine([]byte("IQUI AAAA RDadcs://other.hub"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventRedirect || event.RedirectURL != "adcs://other.hub" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestADCAdaptorParsesPlainQUIAsUserQuit(t *testing.T) {
	a := NewADCAdaptor()
	event, err := a.ParseLine([]byte("IQUI AAAA"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if event.Kind != EventUserQuit || event.ShortID != "AAAA" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestADCAdaptorSendInfoEscapesAndIncludesOwnSID(t *testing.T) {
	a := NewADCAdaptor()
	a.SetOwnSID("AAAA")
	out := a.SendInfo(Identity{Nick: "has space", ShareSize: 10, SlotsFree: 2})
	got := string(out)
	if got[:4] != "BINF" {
		t.Fatalf("expected BINF prefix, got %q", got)
	}
	if !containsSubstring(got, "NIhas\\sspace") {
		t.Fatalf("expected escaped nick field in %q", got)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestADCAdaptorRejectsEmptyLine(t *testing.T) {
	a := NewADCAdaptor()
	if _, err := a.ParseLine([]byte("")); err == nil {
		t.Fatalf("expected error for empty line")
	}
}
