// Package codectest builds item payloads for tests: NBT documents in
// the upstream item layout, gzipped and base64-encoded.
package codectest

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"sort"
	"testing"
)

// Wire tag ids, mirroring the decoder's.
const (
	TagEnd      byte = 0
	TagByte     byte = 1
	TagInt      byte = 3
	TagString   byte = 8
	TagList     byte = 9
	TagCompound byte = 10
)

// Writer builds raw NBT bytes. Tests use it directly only to produce
// malformed documents; well-formed items go through Payload.
type Writer struct {
	bytes.Buffer
}

// TagHeader writes a tag type byte and name.
func (w *Writer) TagHeader(typ byte, name string) {
	w.WriteByte(typ)
	w.Str(name)
}

// Str writes a length-prefixed string.
func (w *Writer) Str(s string) {
	_ = binary.Write(w, binary.BigEndian, int16(len(s)))
	w.WriteString(s)
}

// I32 writes a big-endian int32.
func (w *Writer) I32(v int32) {
	_ = binary.Write(w, binary.BigEndian, v)
}

// Item describes one test item payload.
type Item struct {
	Name         string
	Lore         []string
	SkyblockID   string
	Enchantments map[string]int32
	Count        byte // 0 omits the Count tag
	OmitTag      bool
	OmitDisplay  bool
}

// Payload assembles the base64 gzip NBT payload for one item.
func Payload(t *testing.T, it Item) string {
	t.Helper()

	w := &Writer{}
	w.TagHeader(TagCompound, "")
	w.TagHeader(TagList, "i")
	w.WriteByte(TagCompound)
	w.I32(1)

	if it.Count != 0 {
		w.TagHeader(TagByte, "Count")
		w.WriteByte(it.Count)
	}
	if !it.OmitTag {
		w.TagHeader(TagCompound, "tag")
		if !it.OmitDisplay {
			w.TagHeader(TagCompound, "display")
			w.TagHeader(TagString, "Name")
			w.Str(it.Name)
			if len(it.Lore) > 0 {
				w.TagHeader(TagList, "Lore")
				w.WriteByte(TagString)
				w.I32(int32(len(it.Lore)))
				for _, line := range it.Lore {
					w.Str(line)
				}
			}
			w.WriteByte(TagEnd)
		}
		if it.SkyblockID != "" || len(it.Enchantments) > 0 {
			w.TagHeader(TagCompound, "ExtraAttributes")
			if it.SkyblockID != "" {
				w.TagHeader(TagString, "id")
				w.Str(it.SkyblockID)
			}
			if len(it.Enchantments) > 0 {
				w.TagHeader(TagCompound, "enchantments")
				names := make([]string, 0, len(it.Enchantments))
				for n := range it.Enchantments {
					names = append(names, n)
				}
				sort.Strings(names)
				for _, n := range names {
					w.TagHeader(TagInt, n)
					w.I32(it.Enchantments[n])
				}
				w.WriteByte(TagEnd)
			}
			w.WriteByte(TagEnd)
		}
		w.WriteByte(TagEnd)
	}
	w.WriteByte(TagEnd) // item
	w.WriteByte(TagEnd) // root

	return GzipB64(t, w.Bytes())
}

// GzipB64 compresses raw bytes and base64-encodes them.
func GzipB64(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// Corrupt returns a payload that passes base64 but is not gzip.
func Corrupt() string {
	return base64.StdEncoding.EncodeToString([]byte("not a gzip stream"))
}
