package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pleimann/gazeboard/internal/history"
)

// maxBodyBytes bounds POST /api/history payloads
const maxBodyBytes = 1 << 20

const recordSchemaURL = "typing-history.json"

const recordSchemaJSON = `{
  "type": "object",
  "properties": {
    "userId": {"type": ["integer", "null"], "minimum": 1},
    "text": {"type": "string", "minLength": 1}
  },
  "required": ["text"],
  "additionalProperties": false
}`

var recordSchema = jsonschema.MustCompileString(recordSchemaURL, recordSchemaJSON)

// decodeRecord validates body against the record schema and returns the
// record plus a list of readable problems
func decodeRecord(body io.Reader) (history.NewRecord, []string) {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return history.NewRecord{}, []string{fmt.Sprintf("failed to read body: %v", err)}
	}
	if len(data) > maxBodyBytes {
		return history.NewRecord{}, []string{"body too large"}
	}

	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return history.NewRecord{}, []string{fmt.Sprintf("malformed JSON: %v", err)}
	}
	if err := recordSchema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return history.NewRecord{}, validationMessages(ve)
		}
		return history.NewRecord{}, []string{err.Error()}
	}

	var nr history.NewRecord
	if err := json.Unmarshal(data, &nr); err != nil {
		return history.NewRecord{}, []string{err.Error()}
	}
	return nr, nil
}

// validationMessages flattens the leaf causes of a schema failure
func validationMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, validationMessages(c)...)
	}
	return out
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	nr, problems := decodeRecord(r.Body)
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid payload", Errors: problems})
		return
	}

	rec, err := s.store.SaveTypingHistory(r.Context(), nr)
	if err != nil {
		if errors.Is(err, history.ErrInvalidRecord) {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid payload", Errors: []string{err.Error()}})
			return
		}
		s.logger.Errorw("failed to save typing history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "failed to save typing history"})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.store.RecentTypingHistory(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("failed to read typing history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "failed to read typing history"})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || userID < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid user id"})
		return
	}

	records, err := s.store.TypingHistoryByUser(r.Context(), userID)
	if err != nil {
		s.logger.Errorw("failed to read typing history", "userId", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "failed to read typing history"})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

func nonNil(records []history.Record) []history.Record {
	if records == nil {
		return []history.Record{}
	}
	return records
}
