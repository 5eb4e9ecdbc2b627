package compression

import (
	"fmt"
	"strings"
)

// Level selects the compression policy of a channel. It is fixed when the
// channel is created.
type Level int

const (
	None Level = iota
	Light
	Medium
	Heavy
	// Dynamic starts with library 0 and lets the producer rotate libraries at
	// runtime with compression events.
	Dynamic
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Light:
		return "light"
	case Medium:
		return "medium"
	case Heavy:
		return "heavy"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses the configuration form of a level. The empty string means
// None.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "light":
		return Light, nil
	case "medium":
		return Medium, nil
	case "heavy":
		return Heavy, nil
	case "dynamic":
		return Dynamic, nil
	default:
		return None, fmt.Errorf("unknown compression level %q", s)
	}
}

// initialLibrary is the library index a level starts with.
func (l Level) initialLibrary() int {
	switch l {
	case Medium:
		return LZ4
	case Heavy:
		return Zstd
	default:
		return Snappy
	}
}
