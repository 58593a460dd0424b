package bus

import "github.com/nightwatchhq/nightwatch/pkg/models"

// PayloadCloner lets payload types provide their own deep copy.
type PayloadCloner interface {
	ClonePayload() any
}

func cloneMessage(msg models.AgentMessage) models.AgentMessage {
	out := msg
	out.Payload = clonePayload(msg.Payload)
	return out
}

// clonePayload deep-copies the common payload shapes (maps, slices, and
// types implementing PayloadCloner). Scalars and other values pass through;
// callers using shared mutable payloads beyond these shapes should
// implement PayloadCloner.
func clonePayload(v any) any {
	switch p := v.(type) {
	case PayloadCloner:
		return p.ClonePayload()
	case map[string]any:
		out := make(map[string]any, len(p))
		for k, item := range p {
			out[k] = clonePayload(item)
		}
		return out
	case []any:
		out := make([]any, len(p))
		for i, item := range p {
			out[i] = clonePayload(item)
		}
		return out
	case []string:
		return append([]string(nil), p...)
	case map[string]string:
		out := make(map[string]string, len(p))
		for k, item := range p {
			out[k] = item
		}
		return out
	default:
		return v
	}
}
