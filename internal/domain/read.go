package domain

import "strconv"

// Read is a single sequencing read.
// Sequence and Quality are expected to have equal length; the archive guarantees it.
type Read struct {
	Name     string
	Sequence string
	Quality  string
}

// ReadPair holds both mates of one fragment group.
// Both mates share the same name.
type ReadPair struct {
	Mate1 Read
	Mate2 Read
}

// Name returns the shared read name.
func (p ReadPair) Name() string {
	return p.Mate1.Name
}

// Validate checks the pairing invariant.
func (p ReadPair) Validate() error {
	if p.Mate1.Name == "" || p.Mate2.Name == "" {
		return &PairingError{Read: p.Mate1.Name, Fragments: 2, Reason: "empty read name"}
	}
	if p.Mate1.Name != p.Mate2.Name {
		return &PairingError{Read: p.Mate1.Name, Fragments: 2, Reason: "mate names differ: " + strconv.Quote(p.Mate2.Name)}
	}
	return nil
}

// Fragment is one fragment of an archive record.
type Fragment struct {
	Bases     string
	Qualities string

	// Paired reports whether the archive flags this fragment as part of a pair.
	Paired bool
}

// Record is a raw archive record as returned by a range query.
// A well-formed paired-end record has exactly two paired fragments.
type Record struct {
	Name      string
	Fragments []Fragment
}

// PairFromRecord converts a record into a ReadPair.
// It fails with a *PairingError if the record does not have exactly two
// fragments, if either fragment is unpaired, or if the record has no name.
func PairFromRecord(rec Record) (ReadPair, error) {
	if n := len(rec.Fragments); n != 2 {
		return ReadPair{}, &PairingError{Read: rec.Name, Fragments: n, Reason: "expected 2 fragments"}
	}
	for i, f := range rec.Fragments {
		if !f.Paired {
			return ReadPair{}, &PairingError{Read: rec.Name, Fragments: 2, Reason: "fragment " + strconv.Itoa(i+1) + " is unpaired"}
		}
	}
	pair := ReadPair{
		Mate1: Read{Name: rec.Name, Sequence: rec.Fragments[0].Bases, Quality: rec.Fragments[0].Qualities},
		Mate2: Read{Name: rec.Name, Sequence: rec.Fragments[1].Bases, Quality: rec.Fragments[1].Qualities},
	}
	if err := pair.Validate(); err != nil {
		return ReadPair{}, err
	}
	return pair, nil
}
