package change

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type TrackerTestSuite struct {
	suite.Suite
}

func TestTrackerTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(TrackerTestSuite))
}

func (s *TrackerTestSuite) TestChangesKeepTheirOrder() {
	// arrange
	tracker := NewTracker()

	// act
	tracker.Add(NewEntry(Added, 1, "first"))
	tracker.Add(NewEntry(Deleted, 1, "second"))

	// assert
	changes := tracker.GetChanges()
	s.Require().Len(changes, 2)
	s.Equal(Added, changes[0].GetChangeType())
	s.Equal("first", changes[0].GetItem())
	s.Equal(Deleted, changes[1].GetChangeType())
	s.Equal("second", changes[1].GetItem())
}

func (s *TrackerTestSuite) TestClearDropsPendingChanges() {
	// arrange
	tracker := NewTracker()
	tracker.Add(NewEntry(Added, 1, "item"))

	// act
	tracker.Clear()

	// assert
	s.False(tracker.HasChanges())
	s.Empty(tracker.GetChanges())
}
