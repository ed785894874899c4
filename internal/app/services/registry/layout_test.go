package registry

import (
	"context"
	"errors"
	"testing"
)

func TestHeaderRoundTripCarriesVersionTag(t *testing.T) {
	raw, err := encodeHeader("owner.test", []byte(DefaultEntriesPrefix))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw[0] != CurrentSchema {
		t.Fatalf("expected version tag %d, got %d", CurrentSchema, raw[0])
	}

	version, h, err := decodeHeader(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if version != SchemaOwned || h.Owner != "owner.test" || string(h.EntriesPrefix) != DefaultEntriesPrefix {
		t.Fatalf("unexpected header v%d %+v", version, h)
	}
}

func TestDecodeHeaderRejectsBadRecords(t *testing.T) {
	owned, _ := encodeHeader("owner.test", []byte("m"))
	unknown := append([]byte{9}, owned[1:]...)

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrCorruptRecord},
		{"tag only", []byte{SchemaOwned}, ErrCorruptRecord},
		{"unknown version", unknown, ErrUnsupportedSchema},
		{"garbage body", []byte{SchemaOwned, 0xc1, 0xc1}, ErrCorruptRecord},
	}
	for _, tc := range tests {
		if _, _, err := decodeHeader(tc.raw); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestValuesRecordPreservesOrderAndDuplicates(t *testing.T) {
	in := []string{"hash123", "hash456", "hash123", ""}
	raw, err := encodeValues(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeValues(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("value %d: got %q want %q", i, out[i], in[i])
		}
	}

	if _, err := decodeValues(append([]byte{7}, raw[1:]...)); !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("expected ErrUnsupportedSchema, got %v", err)
	}
}

func TestEntryKeyAndPrefixRules(t *testing.T) {
	if got := string(entryKey([]byte("m"), "user1.test")); got != "muser1.test" {
		t.Fatalf("unexpected entry key %q", got)
	}
	if validPrefix([]byte("S")) || validPrefix([]byte("STA")) || validPrefix(nil) {
		t.Fatal("prefixes overlapping the header key must be rejected")
	}
	if !validPrefix([]byte(DefaultEntriesPrefix)) {
		t.Fatal("default prefix must be valid")
	}
}

func TestZeroValueRegistryIsRejected(t *testing.T) {
	var r Registry
	if _, err := r.List(context.Background(), "user1.test"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("List on zero value: got %v", err)
	}
	if err := r.Append(context.Background(), "owner.test", "user1.test", "h"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Append on zero value: got %v", err)
	}

	var nilRegistry *Registry
	if nilRegistry.Owner() != "" {
		t.Fatal("nil registry must report no owner")
	}
}
