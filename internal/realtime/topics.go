package realtime

import (
	"errors"
	"strings"
)

// Kind is the family of a topic. Every topic is scoped to one canvas.
type Kind string

const (
	KindCanvas    Kind = "canvas"
	KindCursors   Kind = "cursors"
	KindReactions Kind = "reactions"
	KindObjects   Kind = "objects"
)

var ErrInvalidTopic = errors.New("invalid topic")

func (k Kind) valid() bool {
	switch k {
	case KindCanvas, KindCursors, KindReactions, KindObjects:
		return true
	}
	return false
}

// Topic returns the topic name for kind scoped to canvasId.
func Topic(kind Kind, canvasId string) string {
	return string(kind) + ":" + canvasId
}

// ParseTopic splits a topic of the form "<kind>:<canvasId>".
func ParseTopic(topic string) (Kind, string, error) {
	kind, canvasId, ok := strings.Cut(topic, ":")
	if !ok || canvasId == "" || !Kind(kind).valid() {
		return "", "", ErrInvalidTopic
	}
	return Kind(kind), canvasId, nil
}
