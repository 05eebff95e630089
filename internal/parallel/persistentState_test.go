package parallel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type PersistentStateTestSuite struct {
	suite.Suite
}

func TestPersistentStateTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PersistentStateTestSuite))
}

func (s *PersistentStateTestSuite) TestJsonFieldNames() {
	// arrange
	state := PersistentState{
		Destination:        "dest",
		ExpectedGeneration: 42,
		CustomData:         "[3,6]",
		Streams: []PersistentStream{
			{Name: "dest.p.upload_shard_0", ResumableSessionID: "https://example.com/s0"},
		},
	}

	// act
	data, err := state.ToJson()

	// assert
	s.Require().NoError(err)
	s.JSONEq(`{
		"destination": "dest",
		"expected_generation": 42,
		"custom_data": "[3,6]",
		"streams": [{"name": "dest.p.upload_shard_0", "resumable_session_id": "https://example.com/s0"}]
	}`, string(data))
}

func (s *PersistentStateTestSuite) TestParseRoundTrip() {
	// arrange
	expected := &PersistentState{
		Destination:        "dest",
		ExpectedGeneration: 7,
		Streams: []PersistentStream{
			{Name: "a", ResumableSessionID: "1"},
			{Name: "b", ResumableSessionID: "2"},
		},
	}
	data, err := expected.ToJson()
	s.Require().NoError(err)

	// act
	actual, err := ParsePersistentState(data)

	// assert
	s.Require().NoError(err)
	s.Empty(cmp.Diff(expected, actual))
}

func (s *PersistentStateTestSuite) TestParseWithoutCustomData() {
	// act
	state, err := ParsePersistentState([]byte(`{"destination":"d","expected_generation":0,"streams":[{"name":"n","resumable_session_id":"r"}]}`))

	// assert
	s.Require().NoError(err)
	s.Equal("", state.CustomData)
}

func (s *PersistentStateTestSuite) TestParseRejectsInvalidStates() {
	cases := map[string]string{
		"not json":              `{"destination":`,
		"not an object":         `[1,2]`,
		"missing destination":   `{"expected_generation":0,"streams":[{"name":"n","resumable_session_id":"r"}]}`,
		"destination type":      `{"destination":1,"expected_generation":0,"streams":[{"name":"n","resumable_session_id":"r"}]}`,
		"missing generation":    `{"destination":"d","streams":[{"name":"n","resumable_session_id":"r"}]}`,
		"custom data type":      `{"destination":"d","expected_generation":0,"custom_data":3,"streams":[{"name":"n","resumable_session_id":"r"}]}`,
		"missing streams":       `{"destination":"d","expected_generation":0}`,
		"empty streams":         `{"destination":"d","expected_generation":0,"streams":[]}`,
		"stream without name":   `{"destination":"d","expected_generation":0,"streams":[{"resumable_session_id":"r"}]}`,
		"stream without id":     `{"destination":"d","expected_generation":0,"streams":[{"name":"n"}]}`,
		"stream id wrong type":  `{"destination":"d","expected_generation":0,"streams":[{"name":"n","resumable_session_id":5}]}`,
	}

	for name, data := range cases {
		// act
		_, err := ParsePersistentState([]byte(data))

		// assert
		s.Equal(codes.Internal, status.Code(err), name)
	}
}

func (s *PersistentStateTestSuite) TestSessionIDFormat() {
	// act
	id := FormatSessionID("dir/dest.prefix.upload_state", 1234)

	// assert
	s.Equal("ParUpl:dir/dest.prefix.upload_state:1234", id)
}

func (s *PersistentStateTestSuite) TestParseSessionIDWithColonsInName() {
	// act
	name, generation, err := ParseSessionID("ParUpl:a:b:c.upload_state:99")

	// assert
	s.Require().NoError(err)
	s.Equal("a:b:c.upload_state", name)
	s.Equal(int64(99), generation)
}

func (s *PersistentStateTestSuite) TestParseSessionIDRejectsGarbage() {
	for _, id := range []string{"", "ParUpl:", "ParUpl:name", "ParUpl:name:abc", "Other:name:1", "ParUpl::1"} {
		// act
		_, _, err := ParseSessionID(id)

		// assert
		s.Equal(codes.InvalidArgument, status.Code(err), id)
	}
}

type SplitPointsTestSuite struct {
	suite.Suite
}

func TestSplitPointsTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(SplitPointsTestSuite))
}

func (s *SplitPointsTestSuite) TestEvenSplit() {
	s.Equal([]int64{3, 6, 9}, ComputeParallelFileUploadSplitPoints(10, 4, 1))
}

func (s *SplitPointsTestSuite) TestMinStreamSizeLimitsStreams() {
	s.Equal([]int64{50}, ComputeParallelFileUploadSplitPoints(100, 64, 40))
}

func (s *SplitPointsTestSuite) TestSmallFileIsOneShard() {
	s.Empty(ComputeParallelFileUploadSplitPoints(100, DefaultMaxStreams, DefaultMinStreamSize))
}

func (s *SplitPointsTestSuite) TestEmptyFile() {
	s.Empty(ComputeParallelFileUploadSplitPoints(0, 4, 1))
}

func (s *SplitPointsTestSuite) TestMaxStreamsCaps() {
	points := ComputeParallelFileUploadSplitPoints(1000, 8, 1)

	s.Len(points, 7)
	s.Equal(int64(125), points[0])
}

func (s *SplitPointsTestSuite) TestShardRangesCoverFile() {
	// act
	ranges := shardRanges([]int64{3, 6, 9}, 10)

	// assert
	s.Equal([]shardRange{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, ranges)
}
