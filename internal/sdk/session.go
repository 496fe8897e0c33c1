package sdk

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SessionInfo is the parsed form of the YAML document the producer
// publishes alongside the sample buffers. The document's schema is the
// producer's to change, so everything lands in Raw; the few fields the
// CLI displays are lifted out of WeekendInfo.
type SessionInfo struct {
	Raw map[string]any

	TrackName        string
	TrackDisplayName string
	TrackLength      string
	SessionID        int
}

// ExtractSessionInfo slices the session document out of a full snapshot
// view using the offsets the header declared. The returned bytes alias
// the view; callers copy before the view is released.
func ExtractSessionInfo(view []byte, h *SdkHeader) []byte {
	start := int(h.SessionInfoOffset)
	end := start + int(h.SessionInfoLen)
	if start < 0 || end > len(view) || start >= end {
		return nil
	}
	raw := view[start:end]
	// The producer NUL-pads the reserved session region.
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// ParseSessionInfo unmarshals the session YAML document.
func ParseSessionInfo(raw []byte) (*SessionInfo, error) {
	info := &SessionInfo{Raw: map[string]any{}}
	if err := yaml.Unmarshal(raw, &info.Raw); err != nil {
		return nil, fmt.Errorf("parse session info: %w", err)
	}

	if weekend, ok := info.Raw["WeekendInfo"].(map[string]any); ok {
		info.TrackName, _ = weekend["TrackName"].(string)
		info.TrackDisplayName, _ = weekend["TrackDisplayName"].(string)
		info.TrackLength, _ = weekend["TrackLength"].(string)
		if id, ok := weekend["SessionID"].(int); ok {
			info.SessionID = id
		}
	}
	return info, nil
}
