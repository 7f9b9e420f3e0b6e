package confluence

import "context"

// StaticNews is a NewsProvider that returns the same sentiment for every
// instrument. Used when no live news collaborator is wired.
type StaticNews struct {
	Value NewsSentiment
}

func (s StaticNews) Sentiment(context.Context, string) (NewsSentiment, error) {
	return s.Value, nil
}

// StaticFlow is a FlowProvider counterpart to StaticNews.
type StaticFlow struct {
	Value FlowSignal
}

func (s StaticFlow) Flow(context.Context, string) (FlowSignal, error) {
	return s.Value, nil
}
