package gtsam

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// WriteDOT writes the clique structure in Graphviz dot format. Each node
// lists the clique's frontals and separator; edges follow the tree.
func (t *BayesTree) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph BayesTree {"); err != nil {
		return err
	}
	ids := make(map[*Clique]int)
	t.walk(func(c *Clique) { ids[c] = len(ids) })
	var werr error
	t.walk(func(c *Clique) {
		if werr != nil {
			return
		}
		label := keyList(c.Frontals())
		if sep := c.Separator(); len(sep) > 0 {
			label += " : " + keyList(sep)
		}
		if _, err := fmt.Fprintf(w, "  n%d [label=\"%s\"];\n", ids[c], label); err != nil {
			werr = err
			return
		}
		if c.parent != nil {
			if _, err := fmt.Fprintf(w, "  n%d -> n%d;\n", ids[c.parent], ids[c]); err != nil {
				werr = err
			}
		}
	})
	if werr != nil {
		return werr
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// SaveGraph writes the dot rendering to a file, with a creation timestamp
// comment.
func (t *BayesTree) SaveGraph(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "// Creation date (UTC): %s\n", time.Now().UTC()); err != nil {
		return err
	}
	return t.WriteDOT(f)
}

func keyList(keys []Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("x%d", k)
	}
	return strings.Join(parts, ",")
}
