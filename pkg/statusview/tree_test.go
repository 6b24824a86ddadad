package statusview

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type TreeSuite struct {
	suite.Suite
}

func TestTreeSuite(t *testing.T) {
	suite.Run(t, new(TreeSuite))
}

func (s *TreeSuite) TestNewNode() {
	n := NewNode("root")
	s.Equal("root", n.Text())
	s.Equal("", n.Status())
	s.Empty(n.Items())
}

func (s *TreeSuite) TestNewStatusNode() {
	n := NewStatusNode("t1", StatusRunning)
	s.Equal(StatusRunning, n.Status())
}

func (s *TreeSuite) TestAddChaining() {
	root := NewStatusNode("t1", StatusRunning)
	leaf := root.Add("requires resource: vpc")

	s.Len(root.Items(), 1)
	s.Equal(leaf, root.Items()[0])
	s.Equal("", leaf.Status())
}

func (s *TreeSuite) TestAddStatus() {
	root := NewStatusNode("r1", StatusUnknown)
	child := root.AddStatus("creation", StatusRunning)

	s.Equal(StatusRunning, child.Status())
	s.Len(root.Items(), 1)
}
