package manifest

import "strings"

// Ledger maps a row's natural key to the state recorded for it in a
// prior receipt manifest. The ledger is read-only input to a run; a
// fresh receipt is always produced, seeded from it.
type Ledger map[string]*Record

// NewLedger indexes prior records by natural key. When the same key
// appears more than once the last row wins, matching how the receipt
// writer would have overwritten it.
func NewLedger(records []*Record) Ledger {
	l := make(Ledger, len(records))
	for _, rec := range records {
		l[rec.Key()] = rec
	}
	return l
}

// Seed copies previously completed state from the ledger into a fresh
// record with the same natural key. Only fully complete destination
// groups are trusted; a partially recorded destination is left empty so
// it gets re-dispatched. Returns true if the ledger knew the row.
func (l Ledger) Seed(rec *Record) bool {
	prior, ok := l[rec.Key()]
	if !ok {
		return false
	}
	if strings.HasPrefix(prior.DRSURI, "drs://") {
		rec.DRSURI = prior.DRSURI
	}
	if prior.MD5Sum != "" {
		rec.MD5Sum = prior.MD5Sum
	}
	if prior.FileName != "" {
		rec.FileName = prior.FileName
	}
	if prior.GS.Complete() {
		rec.GS = prior.GS
	}
	if prior.S3.Complete() {
		rec.S3 = prior.S3
	}
	return true
}
