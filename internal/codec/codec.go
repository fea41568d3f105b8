// Package codec decodes the auction item payload: standard base64
// wrapping a gzip stream wrapping an NBT document. The decoded item
// identity is what the aggregate tables key on.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"io"
	"strings"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/nbt"
	"skyblock-ah-tracker/pkg/runerror"
)

// maxItemSize bounds the decompressed size of one item payload.
const maxItemSize = 1 << 20

// Decode turns one auction's base64 item payload into the item
// identity and stack quantity. Identical payload bytes always produce
// identical results; any malformed layer yields a decode error.
func Decode(itemBytes string) (model.DecodedItem, error) {
	raw, err := base64.StdEncoding.DecodeString(itemBytes)
	if err != nil {
		return model.DecodedItem{}, runerror.Decode("invalid base64 payload", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return model.DecodedItem{}, runerror.Decode("payload is not gzip", err)
	}
	data, err := io.ReadAll(io.LimitReader(zr, maxItemSize+1))
	if err != nil {
		return model.DecodedItem{}, runerror.Decode("corrupt gzip payload", err)
	}
	if len(data) > maxItemSize {
		return model.DecodedItem{}, runerror.Decode("payload exceeds size limit", nil)
	}

	root, err := nbt.Decode(data)
	if err != nil {
		return model.DecodedItem{}, runerror.Decode("invalid item payload", err)
	}
	return itemFromNBT(root)
}

// itemFromNBT walks the payload layout: the root compound holds an
// "i" list whose first element is the item compound.
func itemFromNBT(root nbt.Compound) (model.DecodedItem, error) {
	list, ok := root.GetList("i")
	if !ok || len(list) == 0 {
		return model.DecodedItem{}, runerror.Decode("payload has no item list", nil)
	}
	item, ok := list[0].(nbt.Compound)
	if !ok {
		return model.DecodedItem{}, runerror.Decode("item entry is not a compound", nil)
	}

	qty := int32(1)
	if n, ok := item.GetInt("Count"); ok && n > 0 {
		qty = int32(n)
	}

	tag, ok := item.GetCompound("tag")
	if !ok {
		return model.DecodedItem{}, runerror.Decode("item has no tag compound", nil)
	}
	display, ok := tag.GetCompound("display")
	if !ok {
		return model.DecodedItem{}, runerror.Decode("item has no display compound", nil)
	}

	name, ok := display.GetString("Name")
	if !ok {
		return model.DecodedItem{}, runerror.Decode("item has no display name", nil)
	}
	name = StripColor(name)
	if name == "" {
		return model.DecodedItem{}, runerror.Decode("item display name is empty", nil)
	}

	id := model.ItemIdentity{
		Name: name,
		Tier: tierFromLore(display),
	}

	if extra, ok := tag.GetCompound("ExtraAttributes"); ok {
		if sbID, ok := extra.GetString("id"); ok {
			id.SkyblockID = sbID
		}
		if ench, ok := extra.GetCompound("enchantments"); ok && len(ench) > 0 {
			id.Enchantments = make(map[string]int, len(ench))
			for name := range ench {
				if lvl, ok := ench.GetInt(name); ok {
					id.Enchantments[name] = int(lvl)
				}
			}
		}
	}

	return model.DecodedItem{Identity: id, Quantity: qty}, nil
}

// tierFromLore scans the lore lines bottom-up for a rarity tier. The
// tier line is conventionally the last lore line.
func tierFromLore(display nbt.Compound) string {
	lore, ok := display.GetList("Lore")
	if !ok {
		return ""
	}
	for i := len(lore) - 1; i >= 0; i-- {
		line, ok := lore[i].(string)
		if !ok {
			continue
		}
		line = StripColor(line)
		for _, tier := range model.Tiers {
			if strings.Contains(line, tier) {
				return tier
			}
		}
	}
	return ""
}

// StripColor removes Minecraft formatting sequences, a section sign
// followed by one code rune, and trims surrounding whitespace.
func StripColor(s string) string {
	if strings.ContainsRune(s, '§') {
		var b strings.Builder
		b.Grow(len(s))
		skip := false
		for _, r := range s {
			if skip {
				skip = false
				continue
			}
			if r == '§' {
				skip = true
				continue
			}
			b.WriteRune(r)
		}
		s = b.String()
	}
	return strings.TrimSpace(s)
}
