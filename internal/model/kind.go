package model

import (
	"fmt"
	"strings"
)

// Kind identifies one of the two submission streams.
type Kind string

const (
	// KindCrash is a crash report with a crash log artifact.
	KindCrash Kind = "crash"
	// KindFeedback is a screenshot feedback with an image/video artifact.
	KindFeedback Kind = "feedback"
)

// Kinds lists every kind in sync order.
var Kinds = []Kind{KindCrash, KindFeedback}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCrash || k == KindFeedback
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("invalid kind %q (want crash or feedback)", s)
	}
	return k, nil
}

// Label is the human-facing singular noun used in messages ("crash #4 not found").
func (k Kind) Label() string {
	if k == KindFeedback {
		return "feedback"
	}
	return "crash"
}

// Plural is the noun used for counts ("3 crash(es)").
func (k Kind) Plural() string {
	if k == KindFeedback {
		return "feedback(s)"
	}
	return "crash(es)"
}

// ArtifactLabel names the artifact a submission of this kind carries.
func (k Kind) ArtifactLabel() string {
	if k == KindFeedback {
		return "screenshot"
	}
	return "log"
}

// ArtifactDir is the directory, relative to the data dir, holding this kind's artifacts.
func (k Kind) ArtifactDir() string {
	if k == KindFeedback {
		return "screenshots"
	}
	return "logs"
}
