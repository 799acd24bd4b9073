package adunit

import (
	"errors"
	"fmt"
	"strings"
)

// Format is the presentation style of an ad. It is fixed for the life of an Instance.
type Format string

const (
	FormatBumper       Format = "bumper"
	FormatNonSkippable Format = "non_skippable_in_stream"
	FormatSkippable    Format = "skippable_in_stream"
)

// DefaultSkipAfterSeconds applies to skippable ads that do not set a threshold.
const DefaultSkipAfterSeconds = 5

var (
	ErrUnknownFormat    = errors.New("unknown ad format")
	ErrInvalidSkipAfter = errors.New("skip threshold must not be negative")
	ErrNoHost           = errors.New("ad unit needs a host")
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBumper, FormatNonSkippable, FormatSkippable:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// policy captures what differs between formats. Everything else is shared by
// the controller.
type policy struct {
	label string
	// skippable formats run the skip timer and accept Skip.
	skippable bool
	// hostEngagement routes impression and click through the host when it
	// implements EngagementReporter.
	hostEngagement bool
	// requiresMedia short-circuits to Skipped when the media url is missing.
	requiresMedia bool
}

var policies = map[Format]policy{
	FormatBumper: {
		label: "Ad",
	},
	FormatNonSkippable: {
		label: "Ad · Video will play after ad",
	},
	FormatSkippable: {
		label:          "Ad",
		skippable:      true,
		hostEngagement: true,
		requiresMedia:  true,
	},
}

// Instance is one presentation of one creative.
type Instance struct {
	AdID           string
	MediaURL       string
	DestinationURL string
	Title          string
	Format         Format
	// SkipAfterSeconds is only read for skippable ads. Nil means DefaultSkipAfterSeconds.
	SkipAfterSeconds *int
}

func (i Instance) Validate() error {
	if _, ok := policies[i.Format]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, i.Format)
	}
	if i.SkipAfterSeconds != nil && *i.SkipAfterSeconds < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSkipAfter, *i.SkipAfterSeconds)
	}
	return nil
}

// SkipThreshold returns the number of watched seconds after which a skippable
// ad may be skipped.
func (i Instance) SkipThreshold() int {
	if i.SkipAfterSeconds == nil {
		return DefaultSkipAfterSeconds
	}
	return *i.SkipAfterSeconds
}
