package models

import "strings"

// Kind tags how an address value should be interpreted.
type Kind string

const (
	// KindDirectory is an opaque directory identifier such as an Exchange
	// legacy DN.
	KindDirectory Kind = "EX"
	// KindSMTP is an ordinary mail address.
	KindSMTP Kind = "SMTP"
)

// ParseKind maps an extractor type tag to a Kind. Anything other than "EX"
// is treated as SMTP.
func ParseKind(tag string) Kind {
	if strings.EqualFold(strings.TrimSpace(tag), string(KindDirectory)) {
		return KindDirectory
	}
	return KindSMTP
}

// InferKind guesses the kind of an untagged value. Values without "@" are
// directory identifiers.
func InferKind(value string) Kind {
	if strings.Contains(value, "@") {
		return KindSMTP
	}
	return KindDirectory
}

// Reference is one address-like value of a raw record.
type Reference struct {
	Identifier string
	Kind       Kind
}

// Key is the cache key of a directory reference.
func (r Reference) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Identifier))
}

func (r Reference) IsDirectory() bool {
	return r.Kind == KindDirectory
}

// RawRecord is one message as exported by the extractor, before resolution.
type RawRecord struct {
	Subject   string
	Source    Reference
	Targets   []Reference
	Timestamp string
}

// Clone returns a copy that shares no slices with r.
func (r RawRecord) Clone() RawRecord {
	out := r
	out.Targets = append([]Reference(nil), r.Targets...)
	return out
}
