package model

import (
	"sort"
	"strconv"
	"strings"
)

// Tiers lists the known rarity tiers scanned for in item lore.
// "VERY SPECIAL" must come before "SPECIAL" so the longer form wins.
var Tiers = []string{
	"VERY SPECIAL",
	"SPECIAL",
	"DIVINE",
	"MYTHIC",
	"LEGENDARY",
	"EPIC",
	"RARE",
	"UNCOMMON",
	"COMMON",
}

// ItemIdentity is the decoded identity of an item: what the aggregate
// table keys on. Two payloads with the same semantic content decode to
// equal identities regardless of field order in the payload.
type ItemIdentity struct {
	// SkyblockID is the internal item id carried in the payload's
	// ExtraAttributes compound. Empty for vanilla items.
	SkyblockID   string         `json:"skyblock_id,omitempty"`
	Name         string         `json:"name"`
	Tier         string         `json:"tier,omitempty"`
	Enchantments map[string]int `json:"enchantments,omitempty"`
}

// Key returns the deterministic aggregation key for the identity.
// Enchantments are sorted by name so insertion order never leaks in.
func (id ItemIdentity) Key() string {
	var b strings.Builder
	b.WriteString(id.SkyblockID)
	b.WriteByte('|')
	b.WriteString(id.Name)
	b.WriteByte('|')
	b.WriteString(id.Tier)
	b.WriteByte('|')
	b.WriteString(id.EnchantmentString())
	return b.String()
}

// EnchantmentString renders the enchantment map as a stable
// "name=level,name=level" list sorted by enchantment name.
func (id ItemIdentity) EnchantmentString() string {
	if len(id.Enchantments) == 0 {
		return ""
	}
	names := make([]string, 0, len(id.Enchantments))
	for name := range id.Enchantments {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(id.Enchantments[name]))
	}
	return b.String()
}

// DecodedItem is the full result of decoding one item payload.
type DecodedItem struct {
	Identity ItemIdentity `json:"identity"`
	// Quantity is the stack size; 1 when the payload omits a count.
	Quantity int32 `json:"quantity"`
}
