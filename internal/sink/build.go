package sink

import (
	"fmt"
	"io"

	"chatguard/internal/config"
	"chatguard/internal/moderation"
)

// FromConfig builds the configured sink. JSON commands go to out.
func FromConfig(cfg *config.SinkConfig, out io.Writer) (moderation.Sink, error) {
	switch cfg.Kind {
	case config.SinkJSON, "":
		return NewJSONSink(out), nil
	case config.SinkExec:
		s, err := NewExecSink(&cfg.Exec)
		if err != nil {
			return nil, fmt.Errorf("failed to create exec sink: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}
