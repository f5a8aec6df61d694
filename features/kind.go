package features

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects a detection algorithm.
type Kind int

const (
	// GFTT keeps corners with the largest minimum eigenvalue of the local
	// structure tensor (Shi-Tomasi).
	GFTT Kind = iota
	// SURF keeps maxima of the box-filter Hessian determinant.
	SURF
	// SIFT keeps extrema of the difference-of-Gaussians scale space.
	SIFT
	// FAST keeps segment-test corners on a 16 pixel circle.
	FAST
	// GFTTHarris ranks corners by the Harris response instead of the
	// minimum eigenvalue.
	GFTTHarris
)

// ErrUnknownKind indicates a detector name that does not parse.
var ErrUnknownKind = errors.New("unknown detector kind")

var kindNames = map[Kind]string{
	GFTT:       "gftt",
	SURF:       "surf",
	SIFT:       "sift",
	FAST:       "fast",
	GFTTHarris: "gftt-harris",
}

// Kinds lists every detector in declaration order.
func Kinds() []Kind {
	return []Kind{GFTT, SURF, SIFT, FAST, GFTTHarris}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the names produced by String, case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
