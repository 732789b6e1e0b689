package adplatform

import (
	"errors"
	"html"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

// ErrSequenceConsumed is yielded when a campaign metrics sequence is ranged
// over a second time.
var ErrSequenceConsumed = errors.New("campaign metrics sequence already consumed")

// onceSeq wraps seq so that it can be ranged over only once.
func onceSeq(seq iter.Seq2[model.CampaignMetric, error]) iter.Seq2[model.CampaignMetric, error] {
	var used atomic.Bool
	return func(yield func(model.CampaignMetric, error) bool) {
		if used.Swap(true) {
			yield(model.CampaignMetric{}, ErrSequenceConsumed)
			return
		}
		seq(yield)
	}
}

// failedSeq yields a single error.
func failedSeq(err error) iter.Seq2[model.CampaignMetric, error] {
	return onceSeq(func(yield func(model.CampaignMetric, error) bool) {
		yield(model.CampaignMetric{}, err)
	})
}

var namePolicy = bluemonday.StrictPolicy()

// cleanName strips markup from an upstream campaign name. Campaign names are
// free text entered on the provider side and end up in the dashboard.
func cleanName(raw string) string {
	return strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(raw)))
}
