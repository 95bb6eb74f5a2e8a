// Package words supplies the two small, fixed word lists used to derive a
// human-memorable code suffix from a mailbox id's first two bytes. The list contents carry no
// compatibility guarantee; only their determinism and disjointness matter.
package words

// Even is indexed by a mailbox id's first byte to pick the first word of a
// code suffix.
var Even = []string{
	"alpha", "bravo", "circle", "delta", "ember", "forest",
	"granite", "harbor", "indigo", "juniper", "kernel", "lagoon",
	"meadow", "nimbus", "orchard", "pebble", "quartz", "ridge",
	"summit", "tundra", "umber", "valley", "willow", "xenon",
	"yonder", "zephyr",
}

// Odd is indexed by a mailbox id's second byte to pick the second word of a
// code suffix. Disjoint from Even so a reader can tell the two positions
// apart even without context.
var Odd = []string{
	"anchor", "banjo", "cinder", "dapple", "echo", "falcon",
	"glider", "hollow", "ibis", "jasper", "kestrel", "lantern",
	"marble", "narwhal", "opal", "piston", "quiver", "raven",
	"satchel", "thistle", "urchin", "velvet", "walnut", "xylo",
	"yarrow", "zigzag",
}

// Pair picks a deterministic (even, odd) word pair from the first two bytes
// of a mailbox id. The same bytes always yield the same pair.
func Pair(mailboxFirstByte, mailboxSecondByte byte) (string, string) {
	return Even[int(mailboxFirstByte)%len(Even)], Odd[int(mailboxSecondByte)%len(Odd)]
}
