package transaction

import (
	"math"
	"slices"
)

// trackedField compares one field of a stored transaction with the same
// field of a payload.
type trackedField struct {
	name  string
	equal func(s *Transaction, p *Payload) bool
}

func stringField(name string, stored func(*Transaction) *string, incoming func(*Payload) *string) trackedField {
	return trackedField{
		name: name,
		equal: func(s *Transaction, p *Payload) bool {
			return equalNullable(stored(s), incoming(p))
		},
	}
}

// trackedFields is the fixed set of fields whose change forces an update.
// Derived fields (display name, merchant, pending-era names) are not listed:
// they follow from these.
var trackedFields = []trackedField{
	{name: "transactionDate", equal: func(s *Transaction, p *Payload) bool { return s.TransactionDate == p.TransactionDate }},
	{name: "plaidCategory", equal: func(s *Transaction, p *Payload) bool { return slices.Equal(s.PlaidCategory, p.PlaidCategory) }},
	{name: "externalId", equal: func(s *Transaction, p *Payload) bool { return s.ExternalID == p.ExternalID }},
	{name: "amount", equal: func(s *Transaction, p *Payload) bool { return equalAmount(s.Amount, p.Amount) }},
	{name: "pending", equal: func(s *Transaction, p *Payload) bool { return s.Pending == p.Pending }},
	{name: "externalName", equal: func(s *Transaction, p *Payload) bool { return s.ExternalName == p.ExternalName }},
	stringField("address", func(s *Transaction) *string { return s.Address }, func(p *Payload) *string { return p.Address }),
	stringField("city", func(s *Transaction) *string { return s.City }, func(p *Payload) *string { return p.City }),
	stringField("state", func(s *Transaction) *string { return s.State }, func(p *Payload) *string { return p.State }),
	stringField("zipCode", func(s *Transaction) *string { return s.ZipCode }, func(p *Payload) *string { return p.ZipCode }),
	stringField("plaidCategoryId", func(s *Transaction) *string { return s.PlaidCategoryID }, func(p *Payload) *string { return p.PlaidCategoryID }),
	stringField("referenceNumber", func(s *Transaction) *string { return s.ReferenceNumber }, func(p *Payload) *string { return p.ReferenceNumber }),
	stringField("ppdId", func(s *Transaction) *string { return s.PpdID }, func(p *Payload) *string { return p.PpdID }),
	stringField("payeeName", func(s *Transaction) *string { return s.PayeeName }, func(p *Payload) *string { return p.PayeeName }),
}

// NeedsUpdate reports whether any tracked field of the payload differs from
// the stored transaction.
func NeedsUpdate(stored *Transaction, incoming *Payload) bool {
	return len(ChangedFields(stored, incoming)) > 0
}

// ChangedFields lists the names of the tracked fields that differ.
func ChangedFields(stored *Transaction, incoming *Payload) []string {
	if stored == nil || incoming == nil {
		return nil
	}

	var changed []string
	for _, f := range trackedFields {
		if !f.equal(stored, incoming) {
			changed = append(changed, f.name)
		}
	}
	return changed
}

// equalNullable treats two nils as equal.
func equalNullable[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// equalAmount treats two NaN amounts as equal so a malformed amount that the
// provider keeps resending does not rewrite the row on every sync.
func equalAmount(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
