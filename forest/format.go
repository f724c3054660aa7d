package forest

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	magic          = "GFOR"
	formatVersion  = uint32(1)
	modePadBytes   = 1
)

// LoadError is returned by Load for any I/O, format, or version problem in
// a forest file. Kind distinguishes the three failure classes so callers
// can branch without string-matching an error message.
type LoadError struct {
	Kind string // "io", "format", or "version"
	Err  error
}

func (e *LoadError) Error() string {
	return "forest: " + e.Kind + " error: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErr(kind string, err error) error {
	return &LoadError{Kind: kind, Err: err}
}

// Load reads a frozen forest from the bit-exact binary layout: a "GFOR"
// header followed by, per tree, a node table and then a leaf/mode table.
// Every tree is validated (non-empty node array, in-range child indices,
// a leaf index table that accounts for every leaf node) before Load
// returns; failures across trees are collected with multierr so a
// multi-tree file reports every bad tree in one error rather than only
// the first.
func Load(r io.Reader) (*Forest, error) {
	br := bufio.NewReader(r)

	var hdrMagic [4]byte
	if _, err := io.ReadFull(br, hdrMagic[:]); err != nil {
		return nil, loadErr("io", errors.Wrap(err, "reading magic"))
	}
	if string(hdrMagic[:]) != magic {
		return nil, loadErr("format", errors.Errorf("bad magic %q", hdrMagic[:]))
	}

	version, err := readU32(br)
	if err != nil {
		return nil, loadErr("io", errors.Wrap(err, "reading version"))
	}
	if version != formatVersion {
		return nil, loadErr("version", errors.Errorf("unsupported version %d", version))
	}

	treeCount, err := readU32(br)
	if err != nil {
		return nil, loadErr("io", errors.Wrap(err, "reading tree count"))
	}
	maxModes, err := readU32(br)
	if err != nil {
		return nil, loadErr("io", errors.Wrap(err, "reading max modes per leaf"))
	}
	featureCount, err := readU32(br)
	if err != nil {
		return nil, loadErr("io", errors.Wrap(err, "reading feature count"))
	}

	trees := make([]Tree, treeCount)
	for i := range trees {
		nodes, err := readNodes(br)
		if err != nil {
			return nil, loadErr("io", errors.Wrapf(err, "tree %d: reading nodes", i))
		}
		trees[i].Nodes = nodes
	}

	var loadErrs error
	for i := range trees {
		leaves, err := readLeaves(br)
		if err != nil {
			multierr.AppendInto(&loadErrs, errors.Wrapf(err, "tree %d: reading leaves", i))
			continue
		}
		trees[i].Leaves = leaves
		if err := validateTree(&trees[i]); err != nil {
			multierr.AppendInto(&loadErrs, errors.Wrapf(err, "tree %d", i))
			continue
		}
		trees[i].buildLeafIndex()
		if got, want := len(trees[i].leafIndexByNode), len(leaves); got != want {
			multierr.AppendInto(&loadErrs, errors.Errorf(
				"tree %d: %d leaf nodes but %d leaf mode tables", i, got, want))
		}
	}
	if loadErrs != nil {
		return nil, loadErr("format", loadErrs)
	}

	return &Forest{
		TreeCount:       treeCount,
		MaxModesPerLeaf: maxModes,
		FeatureCount:    featureCount,
		Trees:           trees,
	}, nil
}

func validateTree(t *Tree) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty node array")
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			continue
		}
		if n.LeftChild < 0 || int(n.LeftChild) >= len(t.Nodes) ||
			n.RightChild < 0 || int(n.RightChild) >= len(t.Nodes) {
			return errors.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func readNodes(r io.Reader) ([]Node, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, count)
	for i := range nodes {
		left, err := readI32(r)
		if err != nil {
			return nil, err
		}
		right, err := readI32(r)
		if err != nil {
			return nil, err
		}
		feat, err := readU32(r)
		if err != nil {
			return nil, err
		}
		thresh, err := readF32(r)
		if err != nil {
			return nil, err
		}
		nodes[i] = Node{LeftChild: left, RightChild: right, FeatureIndex: feat, Threshold: thresh}
	}
	return nodes, nil
}

func readLeaves(r io.Reader) ([]Leaf, error) {
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}
	leaves := make([]Leaf, count)
	for i := range leaves {
		modeCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		modes := make([]Mode, modeCount)
		for j := range modes {
			m, err := readMode(r)
			if err != nil {
				return nil, err
			}
			modes[j] = m
		}
		leaves[i] = Leaf{Modes: modes}
	}
	return leaves, nil
}

func readMode(r io.Reader) (Mode, error) {
	var m Mode
	var mean [3]float32
	for i := range mean {
		v, err := readF32(r)
		if err != nil {
			return Mode{}, err
		}
		mean[i] = v
	}
	m.Mean = r3.Vector{X: float64(mean[0]), Y: float64(mean[1]), Z: float64(mean[2])}

	var invCov [9]float32
	for i := range invCov {
		v, err := readF32(r)
		if err != nil {
			return Mode{}, err
		}
		invCov[i] = v
	}
	for i := range invCov {
		m.InvCov[i] = float64(invCov[i])
	}

	logDet, err := readF32(r)
	if err != nil {
		return Mode{}, err
	}
	m.LogDetCov = float64(logDet)

	n, err := readU32(r)
	if err != nil {
		return Mode{}, err
	}
	m.N = n

	var colour [3]byte
	if _, err := io.ReadFull(r, colour[:]); err != nil {
		return Mode{}, err
	}
	m.ColorRGB = colour

	var pad [modePadBytes]byte
	if _, err := io.ReadFull(r, pad[:]); err != nil {
		return Mode{}, err
	}

	return m, nil
}

// Save writes f back out in the same bit-exact layout Load reads, so that
// Load(Save(f)) reproduces f exactly (forest round-trip property).
func Save(w io.Writer, f *Forest) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(magic); err != nil {
		return errors.Wrap(err, "writing magic")
	}
	for _, v := range []uint32{formatVersion, f.TreeCount, f.MaxModesPerLeaf, f.FeatureCount} {
		if err := writeU32(bw, v); err != nil {
			return err
		}
	}

	for i := range f.Trees {
		if err := writeNodes(bw, f.Trees[i].Nodes); err != nil {
			return errors.Wrapf(err, "tree %d: writing nodes", i)
		}
	}
	for i := range f.Trees {
		if err := writeLeaves(bw, f.Trees[i].Leaves); err != nil {
			return errors.Wrapf(err, "tree %d: writing leaves", i)
		}
	}

	return bw.Flush()
}

func writeNodes(w io.Writer, nodes []Node) error {
	if err := writeU32(w, uint32(len(nodes))); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := writeI32(w, n.LeftChild); err != nil {
			return err
		}
		if err := writeI32(w, n.RightChild); err != nil {
			return err
		}
		if err := writeU32(w, n.FeatureIndex); err != nil {
			return err
		}
		if err := writeF32(w, n.Threshold); err != nil {
			return err
		}
	}
	return nil
}

func writeLeaves(w io.Writer, leaves []Leaf) error {
	if err := writeU32(w, uint32(len(leaves))); err != nil {
		return err
	}
	for _, l := range leaves {
		if err := writeU32(w, uint32(len(l.Modes))); err != nil {
			return err
		}
		for _, m := range l.Modes {
			if err := writeMode(w, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMode(w io.Writer, m Mode) error {
	for _, v := range []float64{m.Mean.X, m.Mean.Y, m.Mean.Z} {
		if err := writeF32(w, float32(v)); err != nil {
			return err
		}
	}
	for _, v := range m.InvCov {
		if err := writeF32(w, float32(v)); err != nil {
			return err
		}
	}
	if err := writeF32(w, float32(m.LogDetCov)); err != nil {
		return err
	}
	if err := writeU32(w, m.N); err != nil {
		return err
	}
	if _, err := w.Write(m.ColorRGB[:]); err != nil {
		return err
	}
	var pad [modePadBytes]byte
	_, err := w.Write(pad[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

func readF32(r io.Reader) (float32, error) {
	v, err := readU32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeI32(w io.Writer, v int32) error {
	return writeU32(w, uint32(v))
}

func writeF32(w io.Writer, v float32) error {
	return writeU32(w, math.Float32bits(v))
}
