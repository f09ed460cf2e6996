package catalog

import (
	"context"

	"partsmatch/internal"
	"partsmatch/internal/matcher"
)

// RemoteMatcher delegates scoring to the catalog's /components/match
// endpoints.
type RemoteMatcher struct {
	client *Client
}

var _ matcher.Matcher = (*RemoteMatcher)(nil)

func NewRemoteMatcher(client *Client) *RemoteMatcher {
	return &RemoteMatcher{client: client}
}

func (m *RemoteMatcher) MatchOne(ctx context.Context, component internal.Record) (matcher.MatchResult, error) {
	results, err := m.client.MatchComponent(ctx, component, 1)
	if err != nil {
		return matcher.MatchResult{}, err
	}
	if len(results) == 0 {
		return matcher.MatchResult{
			Component: component,
			Details:   map[matcher.Factor]float64{},
			Warnings:  []string{"No result returned by the parts catalog"},
		}, nil
	}
	return results[0], nil
}

func (m *RemoteMatcher) MatchMany(ctx context.Context, components []internal.Record) ([]matcher.MatchResult, matcher.Statistics, error) {
	if len(components) == 0 {
		return []matcher.MatchResult{}, matcher.CalculateStatistics(nil), nil
	}
	return m.client.MatchComponentsBatch(ctx, components)
}
