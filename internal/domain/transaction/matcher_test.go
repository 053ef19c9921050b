package transaction

import (
	"testing"

	"cloud.google.com/go/civil"
)

func strPtr(s string) *string {
	return &s
}

func stored(id, accountID, externalID string) *Transaction {
	return &Transaction{ID: id, AccountID: accountID, ExternalID: externalID}
}

func incoming(accountID, externalID string) *Payload {
	return &Payload{AccountID: accountID, ExternalID: externalID, TransactionDate: civil.Date{Year: 2024, Month: 3, Day: 1}}
}

func TestMatch_ByExternalID(t *testing.T) {
	a := stored("t1", "acc-1", "ext-1")
	b := stored("t2", "acc-1", "ext-2")
	p1 := incoming("acc-1", "ext-2")
	p2 := incoming("acc-1", "ext-1")

	pairs := Match([]*Transaction{a, b}, []*Payload{p1, p2})

	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].Stored != b || pairs[0].Incoming != p1 {
		t.Errorf("pair 0 = %+v, want t2/ext-2", pairs[0])
	}
	if pairs[1].Stored != a || pairs[1].Incoming != p2 {
		t.Errorf("pair 1 = %+v, want t1/ext-1", pairs[1])
	}
}

func TestMatch_PendingFallback(t *testing.T) {
	pending := stored("t1", "acc-1", "pending-1")
	settled := incoming("acc-1", "posted-1")
	settled.PendingExternalID = strPtr("pending-1")

	pairs := Match([]*Transaction{pending}, []*Payload{settled})

	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].Stored != pending || pairs[0].Incoming != settled {
		t.Errorf("settled payload should pair with its pending row, got %+v", pairs[0])
	}
}

func TestMatch_ExternalIDTakesPrecedenceOverPendingID(t *testing.T) {
	byPending := stored("t1", "acc-1", "pending-1")
	byExternal := stored("t2", "acc-1", "posted-1")
	p := incoming("acc-1", "posted-1")
	p.PendingExternalID = strPtr("pending-1")

	pairs := Match([]*Transaction{byPending, byExternal}, []*Payload{p})

	if pairs[0].Stored != byExternal {
		t.Errorf("matched %s, want t2", pairs[0].Stored.ID)
	}
	if len(pairs) != 2 || pairs[1].Stored != byPending || pairs[1].Incoming != nil {
		t.Errorf("unreached pending row should be a delete candidate, got %+v", pairs)
	}
}

func TestMatch_StoredRecordPairsAtMostOnce(t *testing.T) {
	s := stored("t1", "acc-1", "ext-1")
	first := incoming("acc-1", "ext-1")
	second := incoming("acc-1", "ext-1")

	pairs := Match([]*Transaction{s}, []*Payload{first, second})

	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].Stored != s || pairs[0].Incoming != first {
		t.Errorf("first payload should win, got %+v", pairs[0])
	}
	if pairs[1].Stored != nil || pairs[1].Incoming != second {
		t.Errorf("second payload should be a create candidate, got %+v", pairs[1])
	}
}

func TestMatch_ScopedByAccount(t *testing.T) {
	s := stored("t1", "acc-1", "ext-1")
	p := incoming("acc-2", "ext-1")

	pairs := Match([]*Transaction{s}, []*Payload{p})

	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(pairs))
	}
	if pairs[0].Stored != nil || pairs[0].Incoming != p {
		t.Errorf("payload for another account must not match, got %+v", pairs[0])
	}
	if pairs[1].Stored != s || pairs[1].Incoming != nil {
		t.Errorf("stored row should be a delete candidate, got %+v", pairs[1])
	}
}

func TestMatch_CreatesAndDeletes(t *testing.T) {
	kept := stored("t1", "acc-1", "ext-1")
	gone := stored("t2", "acc-1", "ext-2")
	p1 := incoming("acc-1", "ext-1")
	p3 := incoming("acc-1", "ext-3")

	pairs := Match([]*Transaction{kept, gone}, []*Payload{p1, p3})

	var creates, deletes, matched int
	for _, pair := range pairs {
		switch {
		case pair.Stored == nil:
			creates++
		case pair.Incoming == nil:
			deletes++
			if pair.Stored != gone {
				t.Errorf("unexpected delete candidate %s", pair.Stored.ID)
			}
		default:
			matched++
		}
	}

	if creates != 1 || deletes != 1 || matched != 1 {
		t.Errorf("creates=%d deletes=%d matched=%d, want 1/1/1", creates, deletes, matched)
	}
}

func TestMatch_Empty(t *testing.T) {
	if pairs := Match(nil, nil); len(pairs) != 0 {
		t.Errorf("Match(nil, nil) = %v, want empty", pairs)
	}
}

func TestDedupe(t *testing.T) {
	first := incoming("acc-1", "ext-1")
	first.Amount = -10
	other := incoming("acc-1", "ext-2")
	sameIDOtherAccount := incoming("acc-2", "ext-1")
	last := incoming("acc-1", "ext-1")
	last.Amount = -12

	got := Dedupe([]*Payload{first, other, sameIDOtherAccount, last})

	if len(got) != 3 {
		t.Fatalf("got %d payloads, want 3", len(got))
	}
	if got[0] != last {
		t.Errorf("position 0 = %+v, want the last copy of ext-1", got[0])
	}
	if got[1] != other || got[2] != sameIDOtherAccount {
		t.Errorf("order not kept: %+v", got)
	}
}

func TestDedupe_NoDuplicates(t *testing.T) {
	in := []*Payload{incoming("acc-1", "ext-1"), incoming("acc-1", "ext-2")}

	got := Dedupe(in)

	if len(got) != 2 || got[0] != in[0] || got[1] != in[1] {
		t.Errorf("Dedupe() = %+v, want input unchanged", got)
	}
}
