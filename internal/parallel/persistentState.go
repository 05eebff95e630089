package parallel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionIDPrefix = "ParUpl:"

type PersistentStream struct {
	Name               string `json:"name"`
	ResumableSessionID string `json:"resumable_session_id"`
}

// PersistentState is stored as the content of the "<prefix>.upload_state"
// object. Field names are part of the stored format.
type PersistentState struct {
	Destination        string             `json:"destination"`
	ExpectedGeneration int64              `json:"expected_generation"`
	CustomData         string             `json:"custom_data"`
	Streams            []PersistentStream `json:"streams"`
}

func (s *PersistentState) ToJson() ([]byte, error) {
	return json.Marshal(s)
}

func invalidState(format string, a ...any) error {
	return status.Errorf(codes.Internal, "Parallel upload state is corrupted: "+format, a...)
}

// ParsePersistentState decodes and validates a stored state. Every problem is
// reported as codes.Internal.
func ParsePersistentState(data []byte) (*PersistentState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, invalidState("not a valid JSON object: %v", err)
	}

	var state PersistentState
	if err := requireField(fields, "destination", &state.Destination); err != nil {
		return nil, err
	}

	if err := requireField(fields, "expected_generation", &state.ExpectedGeneration); err != nil {
		return nil, err
	}

	if raw, ok := fields["custom_data"]; ok {
		if err := json.Unmarshal(raw, &state.CustomData); err != nil {
			return nil, invalidState("custom_data is not a string")
		}
	}

	var streams []map[string]json.RawMessage
	if err := requireField(fields, "streams", &streams); err != nil {
		return nil, err
	}

	if len(streams) == 0 {
		return nil, invalidState("streams is empty")
	}

	for i, stream := range streams {
		var persisted PersistentStream
		if err := requireField(stream, "name", &persisted.Name); err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}

		if err := requireField(stream, "resumable_session_id", &persisted.ResumableSessionID); err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}

		state.Streams = append(state.Streams, persisted)
	}

	return &state, nil
}

func requireField(fields map[string]json.RawMessage, name string, target any) error {
	raw, ok := fields[name]
	if !ok {
		return invalidState("missing field %q", name)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return invalidState("field %q has the wrong type", name)
	}
	return nil
}

func FormatSessionID(stateObjectName string, generation int64) string {
	return fmt.Sprintf("%s%s:%d", sessionIDPrefix, stateObjectName, generation)
}

// ParseSessionID splits a "ParUpl:<name>:<generation>" id. Object names may
// contain colons, the generation follows the last one.
func ParseSessionID(sessionID string) (string, int64, error) {
	if !strings.HasPrefix(sessionID, sessionIDPrefix) {
		return "", 0, status.Errorf(codes.InvalidArgument, "not a parallel upload session id: %q", sessionID)
	}

	rest := strings.TrimPrefix(sessionID, sessionIDPrefix)
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", 0, status.Errorf(codes.InvalidArgument, "malformed parallel upload session id: %q", sessionID)
	}

	generation, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, status.Errorf(codes.InvalidArgument, "malformed generation in parallel upload session id: %q", sessionID)
	}

	return rest[:i], generation, nil
}
