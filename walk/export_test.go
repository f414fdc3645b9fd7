package walk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmowalk/treewalk/cluster"
	"github.com/cosmowalk/treewalk/cmn/cos"
	"github.com/cosmowalk/treewalk/memsys"
)

type fakeTopLeafMap struct {
	owners map[int]cluster.TopLeafOwner
}

func (m *fakeTopLeafMap) Lookup(pseudoLeafID int) (cluster.TopLeafOwner, bool) {
	o, ok := m.owners[pseudoLeafID]
	return o, ok
}

type fakeExportTree struct {
	leafMap *fakeTopLeafMap
}

func (t *fakeExportTree) Root() int              { return 0 }
func (t *fakeExportTree) LastNode() int          { return 0 }
func (t *fakeExportTree) NumParticles() int      { return 0 }
func (t *fakeExportTree) Mask() int              { return 0 }
func (t *fakeExportTree) BoxSize() float64       { return 0 }
func (t *fakeExportTree) Node(id int) cluster.Node { return nil }
func (t *fakeExportTree) TopLeafMap() cluster.TopLeafMap { return t.leafMap }

type exportPseudoNode struct{ leafID int }

func (n *exportPseudoNode) Center() cluster.Vec3      { return cluster.Vec3{} }
func (n *exportPseudoNode) HalfLen() float64          { return 0 }
func (n *exportPseudoNode) Sibling() int              { return -1 }
func (n *exportPseudoNode) FirstChild() int           { return -1 }
func (n *exportPseudoNode) Occupancy() int            { return 0 }
func (n *exportPseudoNode) Kind() cluster.NodeKind    { return cluster.Pseudo }
func (n *exportPseudoNode) TopLevel() bool            { return true }
func (n *exportPseudoNode) InternalTopLevel() bool    { return false }
func (n *exportPseudoNode) HmaxValid() bool           { return false }
func (n *exportPseudoNode) Hmax() float64             { return 0 }
func (n *exportPseudoNode) LeafParticles() []int      { return nil }
func (n *exportPseudoNode) PseudoLeafID() int         { return n.leafID }

func newExportTable(t *testing.T, bunchSize int) *ExportTable {
	t.Helper()
	arena, err := memsys.NewArena(bunchSize * 8 * (2 + cos.NodeListLength))
	require.NoError(t, err)
	t.Cleanup(func() { _ = arena.Free() })
	return NewExportTable(1, bunchSize, 0 /* self rank */, arena)
}

func TestExportTableCoalescesSameDestination(t *testing.T) {
	tbl := newExportTable(t, 8)
	tree := &fakeExportTree{leafMap: &fakeTopLeafMap{owners: map[int]cluster.TopLeafOwner{
		3: {Rank: 1, RemoteNodeID: 42},
	}}}

	tbl.BeginParticle(0)
	require.NoError(t, tbl.Export(0, TopTree, 10, tree, &exportPseudoNode{leafID: 3}))
	require.NoError(t, tbl.Export(0, TopTree, 10, tree, &exportPseudoNode{leafID: 3}))

	recs := tbl.Records(0)
	require.Len(t, recs, 1)
	assert.Equal(t, 42, recs[0].NodeList[0])
	assert.Equal(t, 42, recs[0].NodeList[1])
}

func TestExportTableDoesNotCoalesceAcrossParticles(t *testing.T) {
	tbl := newExportTable(t, 8)
	tree := &fakeExportTree{leafMap: &fakeTopLeafMap{owners: map[int]cluster.TopLeafOwner{
		3: {Rank: 1, RemoteNodeID: 42},
	}}}

	tbl.BeginParticle(0)
	require.NoError(t, tbl.Export(0, TopTree, 10, tree, &exportPseudoNode{leafID: 3}))
	tbl.BeginParticle(0)
	require.NoError(t, tbl.Export(0, TopTree, 11, tree, &exportPseudoNode{leafID: 3}))

	assert.Len(t, tbl.Records(0), 2)
}

func TestExportTableBufferFullAndRollback(t *testing.T) {
	tbl := newExportTable(t, 1)
	tree := &fakeExportTree{leafMap: &fakeTopLeafMap{owners: map[int]cluster.TopLeafOwner{
		3: {Rank: 1, RemoteNodeID: 42},
		4: {Rank: 1, RemoteNodeID: 43},
	}}}

	tbl.BeginParticle(0)
	require.NoError(t, tbl.Export(0, TopTree, 10, tree, &exportPseudoNode{leafID: 3}))
	before := tbl.Count(0)

	tbl.BeginParticle(0)
	err := tbl.Export(0, TopTree, 11, tree, &exportPseudoNode{leafID: 4})
	assert.ErrorIs(t, err, ErrBufferFull)

	tbl.RollbackBy(0, tbl.Count(0)-before)
	assert.Equal(t, before, tbl.Count(0))
}

func TestExportTableResetClearsAllRegions(t *testing.T) {
	tbl := newExportTable(t, 4)
	tree := &fakeExportTree{leafMap: &fakeTopLeafMap{owners: map[int]cluster.TopLeafOwner{
		3: {Rank: 1, RemoteNodeID: 42},
	}}}

	tbl.BeginParticle(0)
	require.NoError(t, tbl.Export(0, TopTree, 10, tree, &exportPseudoNode{leafID: 3}))
	require.Equal(t, 1, tbl.Total())

	tbl.Reset()
	assert.Equal(t, 0, tbl.Total())
	assert.Empty(t, tbl.Records(0))
}
