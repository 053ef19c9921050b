package transaction

// Pair couples a stored transaction with the payload that describes it.
// Either side may be nil: a nil Stored is a create candidate, a nil
// Incoming is a delete candidate.
type Pair struct {
	Stored   *Transaction
	Incoming *Payload
}

type matchKey struct {
	accountID  string
	externalID string
}

// Match pairs incoming payloads with stored transactions of the same
// account. A payload is looked up by its external id first and by its
// pending external id second, so a pending transaction that settles under a
// new id still lands on the same row. Each stored transaction is consumed by
// the first payload that reaches it; stored rows never reached are returned
// last, in their original order.
func Match(stored []*Transaction, incoming []*Payload) []Pair {
	index := make(map[matchKey]*Transaction, len(stored))
	for _, txn := range stored {
		key := matchKey{accountID: txn.AccountID, externalID: txn.ExternalID}
		if _, exists := index[key]; !exists {
			index[key] = txn
		}
	}

	pairs := make([]Pair, 0, len(incoming)+len(stored))
	consumed := make(map[*Transaction]struct{}, len(stored))

	for _, p := range incoming {
		key := matchKey{accountID: p.AccountID, externalID: p.ExternalID}
		match, ok := index[key]
		if !ok && p.PendingExternalID != nil && *p.PendingExternalID != "" {
			key = matchKey{accountID: p.AccountID, externalID: *p.PendingExternalID}
			match, ok = index[key]
		}

		if ok {
			delete(index, key)
			consumed[match] = struct{}{}
			pairs = append(pairs, Pair{Stored: match, Incoming: p})
			continue
		}

		pairs = append(pairs, Pair{Incoming: p})
	}

	for _, txn := range stored {
		if _, ok := consumed[txn]; ok {
			continue
		}
		pairs = append(pairs, Pair{Stored: txn})
	}

	return pairs
}

// Dedupe collapses payloads that share an account and external id. The last
// copy wins and takes the position of the first, so overlapping pages and
// repeated webhooks reconcile to a single row.
func Dedupe(payloads []*Payload) []*Payload {
	positions := make(map[matchKey]int, len(payloads))
	out := make([]*Payload, 0, len(payloads))
	for _, p := range payloads {
		key := matchKey{accountID: p.AccountID, externalID: p.ExternalID}
		if i, ok := positions[key]; ok {
			out[i] = p
			continue
		}
		positions[key] = len(out)
		out = append(out, p)
	}
	return out
}
