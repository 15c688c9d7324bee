package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pleimann/gazeboard/internal/dwell"
)

var (
	ErrStartTimeout = errors.New("gaze sensor did not start in time")
	ErrStopped      = errors.New("gaze sensor stopped")
)

// DefaultStartTimeout bounds how long Start waits for a tracker
const DefaultStartTimeout = 10 * time.Second

// Options are forwarded to the gaze producer
type Options struct {
	ShowPreview          bool          `json:"showPreview"`
	ShowPredictionPoints bool          `json:"showPredictionPoints"`
	StartTimeout         time.Duration `json:"-"`
}

// Sensor is a source of gaze samples. Start blocks until samples are
// flowing or the sensor fails. A nil sample on the channel means the
// tracker had no estimate.
type Sensor interface {
	Start(ctx context.Context, opts Options) error
	Samples() <-chan *dwell.Sample
	Stop() error
}

// Reconnector is implemented by sensors whose producer can go away and come
// back. fn runs each time a producer connects, before its first sample.
type Reconnector interface {
	OnConnect(fn func())
}

// wireSample is the JSON shape produced by the browser tracker.
// timestamp is milliseconds; samples without one are stamped on arrival.
type wireSample struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// DecodeSample parses one JSON sample. null, malformed input and samples
// missing a coordinate all decode to nil.
func DecodeSample(data []byte) *dwell.Sample {
	return decodeSample(data, time.Now)
}

func decodeSample(data []byte, now func() time.Time) *dwell.Sample {
	var w *wireSample
	if err := json.Unmarshal(data, &w); err != nil || w == nil {
		return nil
	}
	if w.X == nil || w.Y == nil {
		return nil
	}
	s := &dwell.Sample{X: *w.X, Y: *w.Y}
	if w.Timestamp != nil {
		s.Timestamp = time.Unix(0, int64(*w.Timestamp*float64(time.Millisecond)))
	} else {
		s.Timestamp = now()
	}
	if !s.Valid() {
		return nil
	}
	return s
}

// EncodeSample renders a sample in the tracker format
func EncodeSample(s *dwell.Sample) ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	x, y := s.X, s.Y
	ts := float64(s.Timestamp.UnixNano()) / float64(time.Millisecond)
	return json.Marshal(wireSample{X: &x, Y: &y, Timestamp: &ts})
}
