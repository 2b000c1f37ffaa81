package model

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// IDKind distinguishes client-generated placeholder ids from server-assigned ones.
type IDKind int

const (
	// KindLocal is a client-generated token that has never been persisted by the backend.
	KindLocal IDKind = iota
	// KindRemote is an authoritative, server-assigned numeric id.
	KindRemote
)

// RecordID is the two-phase id space for defect records. A record starts its
// life with a local token and is only addressable on the backend once it has
// been reassigned a remote id by an authoritative reload.
type RecordID struct {
	Kind    IDKind
	Token   string
	Numeric int64
}

// NewLocalID generates a fresh local placeholder id.
func NewLocalID() RecordID {
	return RecordID{Kind: KindLocal, Token: uuid.NewString()}
}

// LocalID wraps an existing token as a local id.
func LocalID(token string) RecordID {
	return RecordID{Kind: KindLocal, Token: token}
}

// RemoteID wraps a server-assigned numeric id.
func RemoteID(n int64) RecordID {
	return RecordID{Kind: KindRemote, Numeric: n}
}

// ParseRecordID interprets a string id: all-digit strings are remote ids,
// anything else is treated as a local token. This matches the wire convention
// where server ids are stringified integers.
func ParseRecordID(s string) RecordID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return RemoteID(n)
	}
	return LocalID(s)
}

// IsRemote reports whether the id is backend-addressable.
func (id RecordID) IsRemote() bool {
	return id.Kind == KindRemote
}

func (id RecordID) String() string {
	if id.Kind == KindRemote {
		return strconv.FormatInt(id.Numeric, 10)
	}
	return id.Token
}

// MarshalJSON encodes the id as its string form so persisted snapshots keep
// the same shape regardless of id kind.
func (id RecordID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *RecordID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ParseRecordID(s)
	return nil
}
