package node

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTreeUniquenessProperties checks that no sequence of registrations can
// leave two nodes sharing an alcn or an output destination.
func TestTreeUniquenessProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("alcn and dest_path stay unique", prop.ForAll(
		func(names []int, langs []int, dests []int) bool {
			tree := NewTree()
			root := New(nil, "/", "", "/", nil, nil)
			if err := tree.Register(root); err != nil {
				return false
			}
			languages := []string{"", "en", "de"}
			for i := range names {
				lang := languages[langs[i%len(langs)]%len(languages)]
				cn := fmt.Sprintf("p%d.html", names[i]%5)
				dest := fmt.Sprintf("/d%d.html", dests[i%len(dests)]%7)
				_ = tree.Register(New(root, cn, lang, dest, nil, nil))
			}

			seenALCN := map[string]bool{}
			seenDest := map[string]bool{}
			for _, n := range tree.Nodes() {
				if seenALCN[n.ALCN()] {
					return false
				}
				seenALCN[n.ALCN()] = true
				if n.NoOutput() {
					continue
				}
				if seenDest[n.DestPath()] {
					return false
				}
				seenDest[n.DestPath()] = true
			}
			return len(seenALCN) == tree.Len()
		},
		gen.SliceOfN(20, gen.IntRange(0, 100)),
		gen.SliceOfN(20, gen.IntRange(0, 100)),
		gen.SliceOfN(20, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
