package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/omochice/fcchat/pkg/protocol"
)

// ExpandListData expands the rdata of a MANAGELIST packet. When rdata is a
// list whose first element is a schema, every following record is turned
// into a map keyed by the schema paths. Nested schema groups such as
// {"u": ["camserv", "phase"]} produce nested maps, in the order the
// decoder left them; a group that still holds several keys is read in key
// order. Anything else is returned unchanged.
func ExpandListData(rdata any, logger *slog.Logger) any {
	list, ok := rdata.([]any)
	if !ok || len(list) == 0 {
		return rdata
	}
	schema, ok := list[0].([]any)
	if !ok {
		return rdata
	}
	if logger == nil {
		logger = slog.Default()
	}

	var paths [][]string
	for _, prop := range schema {
		switch p := prop.(type) {
		case string:
			paths = append(paths, []string{p})
		case map[string]any:
			for _, group := range sortedKeys(p) {
				fields, ok := p[group].([]any)
				if !ok {
					logger.Warn("nested list schema is too deep", "group", group)
					continue
				}
				for _, f := range fields {
					if name, ok := f.(string); ok {
						paths = append(paths, []string{group, name})
					}
				}
			}
		}
	}

	out := make([]any, 0, len(list)-1)
	for _, record := range list[1:] {
		values, ok := record.([]any)
		if !ok {
			out = append(out, record)
			continue
		}
		msg := make(map[string]any, len(values))
		for i, v := range values {
			if i >= len(paths) {
				logger.Warn("not enough elements in list schema", "schema_len", len(paths), "record_len", len(values))
				break
			}
			setPath(msg, paths[i], v)
		}
		out = append(out, msg)
	}
	return out
}

func setPath(m map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// fetchJSON downloads and decodes a JSON document with numbers normalized
// the way packet payloads are.
func (c *Client) fetchJSON(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	v, err := protocol.ParseJSON(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", strings.SplitN(url, "?", 2)[0], err)
	}
	return v, nil
}
