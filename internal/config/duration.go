package config

import (
	"fmt"
	"strconv"
	"time"
)

// Duration is a time.Duration that unmarshals the same way in every supported
// config format: "120s"-style strings via time.ParseDuration, and bare
// integers as whole seconds. Without this, a JSON `"request_timeout": 120`
// would decode as 120 nanoseconds and every backend call would hit an
// instantly-expired deadline.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText handles yaml.v3 and go-toml/v2 scalars.
func (d *Duration) UnmarshalText(b []byte) error {
	s := string(b)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts both `"120s"` and `120` (seconds).
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		return d.UnmarshalText([]byte(s))
	}
	return d.UnmarshalText(b)
}

// MarshalText writes the standard duration notation, so a loaded config
// round-trips through any of the three encoders.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
