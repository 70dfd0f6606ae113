package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage is one entry read back from a stream.
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishToStream appends values to stream with XADD. Non-scalar values are
// JSON encoded.
func PublishToStream(ctx context.Context, client *redis.Client, stream string, values map[string]interface{}) (string, error) {
	streamValues := make(map[string]interface{}, len(values))
	for k, v := range values {
		s, err := streamValue(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode stream field %s: %w", k, err)
		}
		streamValues[k] = s
	}

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: streamValues,
	}).Result()
}

// PublishJSONToStream encodes data as the "data" field next to a unix "timestamp".
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return PublishToStream(ctx, client, stream, map[string]interface{}{
		"data":      string(jsonBytes),
		"timestamp": time.Now().Unix(),
	})
}

// ReadRange returns up to count entries of stream starting at the oldest.
func ReadRange(ctx context.Context, client *redis.Client, stream string, count int64) ([]StreamMessage, error) {
	msgs, err := client.XRangeN(ctx, stream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}

	out := make([]StreamMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, StreamMessage{Stream: stream, ID: m.ID, Values: m.Values})
	}
	return out, nil
}

func streamValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
