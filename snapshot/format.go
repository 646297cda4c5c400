// Package snapshot implements the ahead-of-time heap snapshot format
// spec.md §6 names ("an optional ahead-of-time snapshot loader"),
// expanded by SPEC_FULL.md §4.10: a header (format version, cell count,
// root count, content hash) framing a compressed, length-prefixed,
// type-tagged stream of the cells reachable from a vm.VM's own roots,
// plus a pluggable content-addressed Store for persisting the result.
//
// Two cell kinds cannot be serialized bit-for-bit: a Closure's code
// block is compiler output the core never owns (see vm.Closure's own
// doc comment), and a NativeFunction's call handler is an opaque Go
// closure. Both are instead serialized by name and rebound against a
// host-supplied CodeLookup/NativeLookup at load time — the same way a
// V8 startup snapshot re-attaches its builtins table rather than
// replaying the compiler that produced it.
package snapshot

import "errors"

// magic identifies the start of a snapshot body, a cheap corruption
// check before the version field is even trusted.
const magic uint32 = 0x4c4a5331 // "LJS1"

// Version is the current wire format version. Loading rejects any
// other value before allocating a single cell (spec's snapshot
// contract: "mismatched versions are rejected").
const Version uint32 = 1

// headerSize is the fixed byte length of Header's on-wire encoding:
// magic(4) + version(4) + cellCount(4) + rootCount(4) + hash(32).
const headerSize = 4 + 4 + 4 + 4 + 32

// hashSize is the length of the content hash (sha256).
const hashSize = 32

// Header is the fixed-size preamble spec's snapshot contract and
// SPEC_FULL.md §4.10 both describe. It is never compressed, so a
// loader can validate it — magic, version, and the hash of the
// (decompressed) body that follows — before touching the body at all.
type Header struct {
	Version   uint32
	CellCount uint32
	RootCount uint32
	Hash      [hashSize]byte
}

// ErrBadMagic is returned when the leading magic bytes don't identify
// a snapshot at all (truncated, corrupted, or not a snapshot file).
var ErrBadMagic = errors.New("snapshot: not a snapshot (bad magic)")

// ErrVersionMismatch is returned when Header.Version does not match
// the version this build of the package writes and reads.
var ErrVersionMismatch = errors.New("snapshot: version mismatch")

// ErrHashMismatch is returned when the decompressed body's content
// hash does not match the header's recorded hash.
var ErrHashMismatch = errors.New("snapshot: content hash mismatch")

// cellKind tags one entry in the body's type-tagged stream (spec's
// snapshot contract: "length-prefixed, type-tagged stream").
type cellKind uint8

const (
	kindString cellKind = iota + 1
	kindStructure
	kindObject
	kindClosure
	kindUpvalue
	kindNativeFunction
)

// valueKind tags how one value.Value is encoded inline: either its raw
// 64-bit payload (every non-cell tag: double, int32, bool, null,
// undefined, empty — value.Value's underlying type is uint64, so this
// needs no per-tag decode/re-encode logic) or a reference by cell-table
// index.
type valueKind uint8

const (
	valueRaw valueKind = iota
	valueRef
)
