package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// PaginateGraphQL accumulates every page of a cursor-based GraphQL
// connection. dataPath navigates the response from the top, e.g.
// "repository.pullRequests"; the node at that path must expose "nodes" and
// "pageInfo.{endCursor,hasNextPage}".
func (t *Transport) PaginateGraphQL(ctx context.Context, query string, variables map[string]any, dataPath string) ([]map[string]any, error) {
	var all []map[string]any
	var cursor string

	for {
		vars := make(map[string]any, len(variables)+1)
		for k, v := range variables {
			vars[k] = v
		}
		if cursor != "" {
			vars["cursor"] = cursor
		}

		data, err := t.GraphQL(ctx, query, vars)
		if err != nil {
			return nil, err
		}

		node, err := navigate(data, dataPath)
		if err != nil {
			return nil, err
		}

		nodes, _ := node["nodes"].([]any)
		for _, n := range nodes {
			if m, ok := n.(map[string]any); ok {
				all = append(all, m)
			}
		}

		pageInfo, _ := node["pageInfo"].(map[string]any)
		hasNext, _ := pageInfo["hasNextPage"].(bool)
		if !hasNext {
			break
		}
		cursor, _ = pageInfo["endCursor"].(string)
		if cursor == "" {
			break
		}
	}

	return all, nil
}

func navigate(data map[string]any, dotPath string) (map[string]any, error) {
	node := data
	for _, key := range strings.Split(dotPath, ".") {
		next, ok := node[key].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("navigating %q: missing or non-object key %q", dotPath, key)
		}
		node = next
	}
	return node, nil
}

// PaginateREST accumulates every page of a Link-header-paginated REST
// endpoint, following rel="next" links until exhausted. Each page's body may
// be a bare JSON array, or an object exposing its rows under "values"
// (Jira-style) or "issues".
func (t *Transport) PaginateREST(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	var all []map[string]any
	nextPath := path
	nextParams := params

	for nextPath != "" {
		resp, body, err := t.Get(ctx, nextPath, nextParams)
		if err != nil {
			return nil, err
		}
		nextParams = nil

		items, err := decodePage(body)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		link := parseNextLink(resp.Header.Get("Link"))
		if link == "" {
			break
		}
		nextPath = link
	}

	return all, nil
}

func decodePage(body []byte) ([]map[string]any, error) {
	var asArray []map[string]any
	if err := json.Unmarshal(body, &asArray); err == nil {
		return asArray, nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("decoding page body: %w", err)
	}
	for _, key := range []string{"values", "issues"} {
		if raw, ok := asObject[key].([]any); ok {
			items := make([]map[string]any, 0, len(raw))
			for _, r := range raw {
				if m, ok := r.(map[string]any); ok {
					items = append(items, m)
				}
			}
			return items, nil
		}
	}
	return nil, nil
}

// parseNextLink extracts the URL from a Link header's rel="next" entry,
// e.g. `<https://api.example.com/x?page=2>; rel="next"`. The URL is returned
// as written in the header; Transport.Get passes absolute URLs through
// unmodified and prefixes BaseURL only to relative ones.
func parseNextLink(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		segs := strings.SplitN(part, ";", 2)
		return strings.Trim(strings.TrimSpace(segs[0]), "<>")
	}
	return ""
}
