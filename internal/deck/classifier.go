package deck

import (
	"slices"
	"strings"

	"github.com/sam-warren/cedhtools/internal/models"
)

// Bucket is the presentation group of a card, named by Moxfield type code
type Bucket string

const (
	BucketUnknown      Bucket = "0"
	BucketBattle       Bucket = "1"
	BucketPlaneswalker Bucket = "2"
	BucketCreature     Bucket = "3"
	BucketSorcery      Bucket = "4"
	BucketInstant      Bucket = "5"
	BucketArtifact     Bucket = "6"
	BucketEnchantment  Bucket = "7"
	BucketLand         Bucket = "8"
)

// TypeBuckets lists the recognised type buckets in display order
func TypeBuckets() []Bucket {
	return []Bucket{
		BucketBattle,
		BucketPlaneswalker,
		BucketCreature,
		BucketSorcery,
		BucketInstant,
		BucketArtifact,
		BucketEnchantment,
		BucketLand,
	}
}

// BucketFor maps a type code to its bucket. Unrecognised codes land in
// BucketUnknown.
func BucketFor(typeCode string) Bucket {
	b := Bucket(strings.TrimSpace(typeCode))
	for _, known := range TypeBuckets() {
		if b == known {
			return b
		}
	}
	return BucketUnknown
}

// typeLineBuckets is checked in order; an artifact creature is a creature.
var typeLineBuckets = []struct {
	word   string
	bucket Bucket
}{
	{"battle", BucketBattle},
	{"planeswalker", BucketPlaneswalker},
	{"creature", BucketCreature},
	{"sorcery", BucketSorcery},
	{"instant", BucketInstant},
	{"artifact", BucketArtifact},
	{"enchantment", BucketEnchantment},
	{"land", BucketLand},
}

// BucketForTypeLine derives the bucket from a printed type line such as
// "Legendary Artifact Creature — Golem". Only the front face counts.
func BucketForTypeLine(typeLine string) Bucket {
	front, _, _ := strings.Cut(typeLine, "//")
	front, _, _ = strings.Cut(front, "—")
	words := strings.Fields(strings.ToLower(front))
	for _, t := range typeLineBuckets {
		if slices.Contains(words, t.word) {
			return t.bucket
		}
	}
	return BucketUnknown
}

// Placement is where a card sits in the submitted deck
type Placement struct {
	Board  string `json:"board"`
	Bucket Bucket `json:"bucket"`
}

// Structure maps card identity to placement for the presented boards
type Structure map[string]Placement

// presentedBoards are classified in order; the first board a card appears
// on wins.
var presentedBoards = []string{models.BoardMainboard, models.BoardCompanions}

// Classify builds the placement lookup of a decklist. Commanders are never
// included.
func Classify(list Decklist) Structure {
	structure := make(Structure)
	for _, board := range presentedBoards {
		for _, e := range list.Board(board) {
			if e.UniqueCardID == "" {
				continue
			}
			if _, ok := structure[e.UniqueCardID]; ok {
				continue
			}
			structure[e.UniqueCardID] = Placement{
				Board:  board,
				Bucket: BucketFor(e.TypeCode),
			}
		}
	}
	for _, id := range list.CommanderIDs() {
		delete(structure, id)
	}
	return structure
}

// Lookup reports the placement of a card, false if it is not in the deck
func (s Structure) Lookup(cardID string) (Placement, bool) {
	p, ok := s[cardID]
	return p, ok
}
