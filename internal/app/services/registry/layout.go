package registry

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/R3E-Network/password_registry/internal/app/domain/account"
)

// Persisted layout
//
//	STATE                  -> header record
//	<prefix><account id>   -> entry record
//
// Every record starts with a one-byte version tag followed by a msgpack body.
const (
	// StateKey holds the registry header.
	StateKey = "STATE"

	// DefaultEntriesPrefix namespaces the account -> hashes mapping.
	DefaultEntriesPrefix = "m"
)

// Header versions.
const (
	// SchemaOwnerless is the original layout: only the entries prefix.
	SchemaOwnerless byte = 1
	// SchemaOwned adds the owner in front of the entries prefix.
	SchemaOwned byte = 2

	// CurrentSchema is what Initialize and Upgrade write.
	CurrentSchema = SchemaOwned
)

const entryRecordVersion byte = 1

// header is the msgpack body of the STATE record. Owner is empty for
// SchemaOwnerless records.
type header struct {
	Owner         string `msgpack:"owner,omitempty"`
	EntriesPrefix []byte `msgpack:"entries_prefix"`
}

func encodeHeader(owner account.ID, prefix []byte) ([]byte, error) {
	body, err := msgpack.Marshal(header{Owner: string(owner), EntriesPrefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return append([]byte{CurrentSchema}, body...), nil
}

func decodeHeader(raw []byte) (byte, header, error) {
	if len(raw) < 2 {
		return 0, header{}, fmt.Errorf("%w: header of %d bytes", ErrCorruptRecord, len(raw))
	}
	version := raw[0]
	switch version {
	case SchemaOwnerless, SchemaOwned:
	default:
		return version, header{}, fmt.Errorf("%w: header version %d", ErrUnsupportedSchema, version)
	}

	var h header
	if err := msgpack.Unmarshal(raw[1:], &h); err != nil {
		return version, header{}, fmt.Errorf("%w: header: %v", ErrCorruptRecord, err)
	}
	if len(h.EntriesPrefix) == 0 {
		return version, header{}, fmt.Errorf("%w: empty entries prefix", ErrCorruptRecord)
	}
	if version == SchemaOwned && h.Owner == "" {
		return version, header{}, fmt.Errorf("%w: owned header without owner", ErrCorruptRecord)
	}
	if version == SchemaOwnerless {
		h.Owner = ""
	}
	return version, h, nil
}

func encodeValues(values []string) ([]byte, error) {
	body, err := msgpack.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return append([]byte{entryRecordVersion}, body...), nil
}

func decodeValues(raw []byte) ([]string, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: entry of %d bytes", ErrCorruptRecord, len(raw))
	}
	if raw[0] != entryRecordVersion {
		return nil, fmt.Errorf("%w: entry version %d", ErrUnsupportedSchema, raw[0])
	}
	var values []string
	if err := msgpack.Unmarshal(raw[1:], &values); err != nil {
		return nil, fmt.Errorf("%w: entry: %v", ErrCorruptRecord, err)
	}
	return values, nil
}

// entryKey returns prefix || accountID.
func entryKey(prefix []byte, id account.ID) []byte {
	key := make([]byte, 0, len(prefix)+len(id))
	key = append(key, prefix...)
	return append(key, string(id)...)
}

// validPrefix reports whether prefix can hold entries without shadowing the
// header key.
func validPrefix(prefix []byte) bool {
	return len(prefix) > 0 && !bytes.HasPrefix([]byte(StateKey), prefix)
}
