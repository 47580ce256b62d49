// Package names generates short human-readable labels for live
// connections, so log lines read "disconnect: brisk-heron (41s, 120
// messages)" instead of a bare UUID.
package names

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

var (
	adjectives = []string{
		"amber", "brisk", "calm", "civil", "deft",
		"eager", "fleet", "frank", "grand", "hazy",
		"keen", "late", "lucid", "mild", "noble",
		"odd", "pale", "quick", "quiet", "rapid",
		"rare", "sly", "stark", "stern", "swift",
		"tidy", "vivid", "warm", "wary", "young",
	}

	birds = []string{
		"auk", "bittern", "crake", "dunlin", "egret",
		"finch", "godwit", "heron", "ibis", "jay",
		"kite", "loon", "merlin", "noddy", "osprey",
		"petrel", "quail", "rail", "shrike", "teal",
		"veery", "wren", "avocet", "brant", "curlew",
		"dipper", "eider", "fulmar", "gannet", "harrier",
	}
)

// Generate returns a random adjective-bird label with a two-digit
// disambiguator. Labels are not guaranteed unique; the connection id is
// the real identity.
func Generate() string {
	mu.Lock()
	defer mu.Unlock()
	adj := adjectives[rng.Intn(len(adjectives))]
	bird := birds[rng.Intn(len(birds))]
	return fmt.Sprintf("%s-%s-%02d", adj, bird, rng.Intn(100))
}
